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

package memory

import (
	"fmt"
)

// Protection is OS-specific page protection value (PAGE_* on Windows, PROT_* on Unix).
type Protection uint32

// Protector changes protection of memory pages.
type Protector interface {
	// Unlock makes [addr, addr+size) writable and executable and returns the protection
	// the range had before.
	Unlock(addr, size uintptr) (Protection, error)
	// Restore sets protection previously returned by Unlock.
	Restore(addr, size uintptr, old Protection) error
}

// NopProtector is a [Protector] for memory that is writable anyway, like Go heap buffers.
type NopProtector struct{}

func (NopProtector) Unlock(uintptr, uintptr) (Protection, error) { return 0, nil }

func (NopProtector) Restore(uintptr, uintptr, Protection) error { return nil }

/*
Write copies data into region r at offset off. The range is made writable with p first
and its original protection is restored afterwards on every path that changed it.
If protection cannot be changed nothing is written.
*/
func Write(p Protector, r Region, off int, data []byte) error {
	if !r.Contains(off, len(data)) {
		return fmt.Errorf("%w: %d bytes at offset %#x, region size %#x", ErrOutOfRange, len(data), off, r.Len())
	}
	if len(data) == 0 {
		return nil
	}

	addr, size := r.Addr(off), uintptr(len(data))
	old, err := p.Unlock(addr, size)
	if err != nil {
		return fmt.Errorf("%w at %#x: %w", ErrProtect, addr, err)
	}
	copy(r.data[off:], data)
	if err := p.Restore(addr, size, old); err != nil {
		return fmt.Errorf("%w: restoring %#x at %#x: %w", ErrProtect, old, addr, err)
	}

	return nil
}

// PageSpan returns page aligned range that covers size bytes at addr.
func PageSpan(addr, size, pageSize uintptr) (uintptr, uintptr) {
	start := addr &^ (pageSize - 1)
	end := (addr + size + pageSize - 1) &^ (pageSize - 1)
	return start, end - start
}

// PatchSpec is a static patch: bytes written at Offset from the signature match.
type PatchSpec struct {
	Signature Signature
	Bytes     []byte
	Offset    int
}

// NewPatchSpec parses signature and replacement bytes. Malformed input is reported
// here, before anything is scanned or written.
func NewPatchSpec(signature, replacement string, offset int) (PatchSpec, error) {
	sig, err := ParseSignature(signature)
	if err != nil {
		return PatchSpec{}, err
	}
	buf, err := ParseBytes(replacement)
	if err != nil {
		return PatchSpec{}, err
	}
	return PatchSpec{Signature: sig, Bytes: buf, Offset: offset}, nil
}

// PatchResult holds addresses of an applied patch.
type PatchResult struct {
	Match uintptr // start of the signature match
	Patch uintptr // first overwritten byte
}

/*
Apply finds spec signature in r and writes replacement bytes at the match plus offset.
If the signature is not found ok is false and err is nil.
*/
func Apply(p Protector, r Region, spec PatchSpec) (res PatchResult, ok bool, err error) {
	off, ok := Scan(r.data, spec.Signature)
	if !ok {
		return PatchResult{}, false, nil
	}
	res = PatchResult{Match: r.Addr(off), Patch: r.Addr(off + spec.Offset)}
	if err := Write(p, r, off+spec.Offset, spec.Bytes); err != nil {
		return res, true, err
	}
	return res, true, nil
}
