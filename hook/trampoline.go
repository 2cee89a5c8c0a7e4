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
	"fmt"
)

const (
	jmpInstrLength = 5 // length of near JMP instruction with operand
	jmpInstrCode   = uint8(0xE9)
	callInstrCode  = uint8(0xE8)
	int3InstrCode  = uint8(0xCC)
	nopInstrCode   = uint8(0x90)
	// longest sequence of instructions that may be stolen to fit the jump
	maxStolen = jmpInstrLength - 1 + 15
)

/*
Trampoline is the code needed to hook a single address:

	site:  JMP stub                 ; Patch, padded with NOPs to whole instructions
	stub:  INT3                     ; raises the breakpoint the callback runs on
	       <relocated instructions> ; Stolen bytes of the original code
	       JMP site+Stolen
*/
type Trampoline struct {
	Site   uintptr
	Stub   uintptr
	Stolen int
	Code   []byte // to be written at Stub
	Patch  []byte // to be written at Site
}

// Resume returns the address execution continues at after the breakpoint.
func (t *Trampoline) Resume() uintptr {
	return t.Stub + 1
}

// BuildTrampoline prepares trampoline for code at site, with the stub located at stub.
// code must contain at least the instructions to be moved, [maxStolen] bytes is always enough.
func BuildTrampoline(site uintptr, code []byte, stub uintptr) (*Trampoline, error) {
	body, stolen, err := Relocate(code, site, stub+1, jmpInstrLength)
	if err != nil {
		return nil, err
	}

	t := &Trampoline{
		Site:   site,
		Stub:   stub,
		Stolen: stolen,
	}

	t.Code = make([]byte, 0, 1+len(body)+jmpInstrLength)
	t.Code = append(t.Code, int3InstrCode)
	t.Code = append(t.Code, body...)
	back, err := jmp(stub+uintptr(len(t.Code)), site+uintptr(stolen))
	if err != nil {
		return nil, err
	}
	t.Code = append(t.Code, back...)

	t.Patch, err = jmp(site, stub)
	if err != nil {
		return nil, err
	}
	for len(t.Patch) < stolen {
		t.Patch = append(t.Patch, nopInstrCode)
	}

	return t, nil
}

// jmp encodes JMP <rel32> located at from.
func jmp(from, to uintptr) ([]byte, error) {
	disp, ok := rel32(from+jmpInstrLength, to)
	if !ok {
		return nil, fmt.Errorf("%w: jump from %#x to %#x is out of reach", ErrInstall, from, to)
	}
	buf := make([]byte, jmpInstrLength)
	buf[0] = jmpInstrCode
	binary.LittleEndian.PutUint32(buf[1:], uint32(disp))
	return buf, nil
}
