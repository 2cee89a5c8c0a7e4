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

/*
Package memory locates byte signatures inside a loaded executable image and overwrites
bytes in place.

All access goes through [Region], a bounded view over memory with a known base address,
so the same code scans a live module mapped by the OS loader and a plain byte slice in
unit tests.
*/
package memory

import (
	"fmt"
	"unsafe"
)

// ModuleInfo describes a module mapped into the current process.
type ModuleInfo struct {
	Base        uintptr // address the image is mapped at
	Name        string  // file name, used as a symbol in log lines
	Path        string
	SizeOfImage uint32 // as reported by the loader
}

// Region is a bounded range of memory starting at Base.
type Region struct {
	Base uintptr
	data []byte
}

// NewRegion returns a region that covers data and reports addresses relative to base.
func NewRegion(base uintptr, data []byte) Region {
	return Region{Base: base, data: data}
}

// RegionAt returns a region over size bytes of live memory at addr.
func RegionAt(addr uintptr, size int) Region {
	if size <= 0 {
		return Region{Base: addr}
	}
	return Region{
		Base: addr,
		data: unsafe.Slice((*byte)(unsafe.Pointer(addr)), size),
	}
}

func (r Region) Len() int {
	return len(r.data)
}

// Bytes returns the memory behind the region. Writes to the returned slice go straight
// to memory and bypass page protection handling, use [Write] for code pages.
func (r Region) Bytes() []byte {
	return r.data
}

// Addr returns the absolute address of offset off.
func (r Region) Addr(off int) uintptr {
	return r.Base + uintptr(off)
}

// Offset converts absolute address to region offset.
func (r Region) Offset(addr uintptr) (int, bool) {
	if addr < r.Base || addr-r.Base >= uintptr(len(r.data)) {
		return 0, false
	}
	return int(addr - r.Base), true
}

// Contains reports whether n bytes at off are all inside the region.
func (r Region) Contains(off, n int) bool {
	return off >= 0 && n >= 0 && off <= len(r.data) && n <= len(r.data)-off
}

// Slice returns sub-region [off, off+n).
func (r Region) Slice(off, n int) (Region, error) {
	if !r.Contains(off, n) {
		return Region{}, fmt.Errorf("%w: %d bytes at offset %#x, region size %#x",
			ErrOutOfRange, n, off, len(r.data))
	}
	return Region{Base: r.Addr(off), data: r.data[off : off+n]}, nil
}
