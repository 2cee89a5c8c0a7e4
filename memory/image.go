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
	"bytes"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"os"
	"unsafe"
)

const (
	dosMagic    = "MZ"
	peMagic     = "PE\x00\x00"
	lfanewOff   = 0x3C
	pe32Magic   = 0x10b
	pe32PMagic  = 0x20b
	fileHdrSize = 20
)

// ImageSize returns SizeOfImage from the optional header of the PE headers in hdr.
// hdr must start at the image base, i.e. with the DOS header.
func ImageSize(hdr []byte) (uint32, error) {
	if len(hdr) < lfanewOff+4 || string(hdr[:2]) != dosMagic {
		return 0, fmt.Errorf("%w: no DOS header", ErrNotPE)
	}
	lfanew := int(binary.LittleEndian.Uint32(hdr[lfanewOff:]))
	if lfanew < 0 || lfanew > len(hdr)-len(peMagic)-fileHdrSize-2 {
		return 0, fmt.Errorf("%w: NT headers at %#x are outside of %#x header bytes", ErrNotPE, lfanew, len(hdr))
	}
	if string(hdr[lfanew:lfanew+len(peMagic)]) != peMagic {
		return 0, fmt.Errorf("%w: no PE signature at %#x", ErrNotPE, lfanew)
	}

	var fh pe.FileHeader
	r := bytes.NewReader(hdr[lfanew+len(peMagic):])
	if err := binary.Read(r, binary.LittleEndian, &fh); err != nil {
		return 0, fmt.Errorf("%w: file header: %w", ErrNotPE, err)
	}

	opt := hdr[lfanew+len(peMagic)+fileHdrSize:]
	if fh.SizeOfOptionalHeader < 2 || int(fh.SizeOfOptionalHeader) > len(opt) {
		return 0, fmt.Errorf("%w: optional header is truncated", ErrNotPE)
	}
	opt = opt[:fh.SizeOfOptionalHeader]

	switch binary.LittleEndian.Uint16(opt) {
	case pe32PMagic:
		var oh pe.OptionalHeader64
		if err := readOptional(opt, &oh); err != nil {
			return 0, err
		}
		return oh.SizeOfImage, nil
	case pe32Magic:
		var oh pe.OptionalHeader32
		if err := readOptional(opt, &oh); err != nil {
			return 0, err
		}
		return oh.SizeOfImage, nil
	default:
		return 0, fmt.Errorf("%w: unknown optional header magic %#x", ErrNotPE, binary.LittleEndian.Uint16(opt))
	}
}

// readOptional decodes optional header, tolerating images with fewer than 16 data directories.
func readOptional(opt []byte, out any) error {
	full := binary.Size(out)
	if len(opt) < full {
		padded := make([]byte, full)
		copy(padded, opt)
		opt = padded
	}
	if err := binary.Read(bytes.NewReader(opt), binary.LittleEndian, out); err != nil {
		return fmt.Errorf("%w: optional header: %w", ErrNotPE, err)
	}
	return nil
}

/*
ImageRegion returns a region covering the whole module image. The size is taken from the
SizeOfImage field of the optional header in memory, not from the loader, so the scan
covers exactly what the image declares.
*/
func ImageRegion(mod ModuleInfo) (Region, error) {
	if mod.Base == 0 {
		return Region{}, fmt.Errorf("%w: module %s has no base address", ErrNotPE, mod.Name)
	}
	// headers always fit into the first page, which is always mapped
	hdr := unsafe.Slice((*byte)(unsafe.Pointer(mod.Base)), os.Getpagesize())
	size, err := ImageSize(hdr)
	if err != nil {
		return Region{}, fmt.Errorf("module %s: %w", mod.Name, err)
	}
	return RegionAt(mod.Base, int(size)), nil
}
