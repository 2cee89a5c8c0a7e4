// This file is part of tq2fix project, available at https://github.com/qrdl/tq2fix
// Copyright (c) 2024 Ilya Caramishev. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at https://www.apache.org/licenses/LICENSE-2.0
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hook

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

var ErrRelocate = errors.New("cannot relocate instruction")

/*
Relocate moves whole instructions from the start of code, originally located at from,
to address to, until at least min bytes of code are consumed. It returns the relocated
instructions and the number of bytes consumed from code.

Instructions are copied as is, except these that depend on their own address:
  - RIP-relative memory operands get their displacement adjusted;
  - JMP, CALL and Jcc with relative target are re-encoded with 32-bit displacement.

Instructions that cannot be relocated (LOOP, JRCXZ, branches into the middle of the
moved range, displacements that don't fit 32 bits) result in [ErrRelocate].
*/
func Relocate(code []byte, from, to uintptr, min int) ([]byte, int, error) {
	var out []byte
	var targets []uintptr
	n := 0
	for n < min {
		inst, err := x86asm.Decode(code[n:], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: decoding at %#x: %w", ErrRelocate, from+uintptr(n), err)
		}
		raw := code[n : n+inst.Len]
		src := from + uintptr(n)
		dst := to + uintptr(len(out))

		enc, target, err := relocateInst(inst, raw, src, dst)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v at %#x: %w", ErrRelocate, inst, src, err)
		}
		if target != 0 {
			targets = append(targets, target)
		}
		out = append(out, enc...)
		n += inst.Len
	}

	for _, t := range targets {
		if t > from && t < from+uintptr(n) {
			return nil, 0, fmt.Errorf("%w: branch to %#x lands inside moved range %#x-%#x",
				ErrRelocate, t, from, from+uintptr(n))
		}
	}

	return out, n, nil
}

// relocateInst returns encoding of inst placed at dst. For branches it also returns the target.
func relocateInst(inst x86asm.Inst, raw []byte, src, dst uintptr) ([]byte, uintptr, error) {
	next := src + uintptr(inst.Len)
	for _, arg := range inst.Args {
		switch a := arg.(type) {
		case x86asm.Rel:
			target := uintptr(int64(next) + int64(a))
			enc, err := relocateBranch(raw, target, dst)
			return enc, target, err
		case x86asm.Mem:
			if a.Base != x86asm.RIP {
				continue
			}
			enc, err := relocateRIPRelative(inst, raw, a, next, dst)
			return enc, 0, err
		}
	}

	enc := make([]byte, len(raw))
	copy(enc, raw)
	return enc, 0, nil
}

func relocateRIPRelative(inst x86asm.Inst, raw []byte, mem x86asm.Mem, next, dst uintptr) ([]byte, error) {
	if inst.PCRel != 4 || inst.PCRelOff+4 > len(raw) ||
		int32(binary.LittleEndian.Uint32(raw[inst.PCRelOff:])) != int32(mem.Disp) {
		return nil, errors.New("unexpected displacement encoding")
	}

	target := uintptr(int64(next) + mem.Disp)
	disp, ok := rel32(dst+uintptr(len(raw)), target)
	if !ok {
		return nil, fmt.Errorf("target %#x is out of reach", target)
	}

	enc := make([]byte, len(raw))
	copy(enc, raw)
	binary.LittleEndian.PutUint32(enc[inst.PCRelOff:], uint32(disp))
	return enc, nil
}

func relocateBranch(raw []byte, target, dst uintptr) ([]byte, error) {
	op := raw
	// drop branch hint and BND prefixes, they have no effect on the relocated copy
	for len(op) > 0 && (op[0] == 0x2E || op[0] == 0x3E || op[0] == 0xF2) {
		op = op[1:]
	}
	if len(op) == 0 {
		return nil, errors.New("no opcode")
	}

	var enc []byte
	switch {
	case op[0] == 0xEB || op[0] == 0xE9:
		enc = []byte{jmpInstrCode, 0, 0, 0, 0}
	case op[0] == 0xE8:
		enc = []byte{callInstrCode, 0, 0, 0, 0}
	case op[0] >= 0x70 && op[0] <= 0x7F:
		enc = []byte{0x0F, 0x80 | (op[0] & 0x0F), 0, 0, 0, 0}
	case op[0] == 0x0F && len(op) > 1 && op[1] >= 0x80 && op[1] <= 0x8F:
		enc = []byte{0x0F, op[1], 0, 0, 0, 0}
	default:
		return nil, fmt.Errorf("unsupported relative branch % X", raw)
	}

	disp, ok := rel32(dst+uintptr(len(enc)), target)
	if !ok {
		return nil, fmt.Errorf("target %#x is out of reach", target)
	}
	binary.LittleEndian.PutUint32(enc[len(enc)-4:], uint32(disp))
	return enc, nil
}

// rel32 returns 32-bit displacement from next (address of the following instruction) to target.
func rel32(next, target uintptr) (int32, bool) {
	d := int64(target) - int64(next)
	return int32(d), d == int64(int32(d))
}
