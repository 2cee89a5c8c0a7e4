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
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// OSProtector changes page protection with mprotect. As there is no call to query
// protection, the current one is looked up in /proc/self/maps.
type OSProtector struct{}

func (OSProtector) Unlock(addr, size uintptr) (Protection, error) {
	start, sz := PageSpan(addr, size, uintptr(os.Getpagesize()))
	old, err := currentProtection(start, sz)
	if err != nil {
		return 0, err
	}
	return old, mprotect(start, sz, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC)
}

func (OSProtector) Restore(addr, size uintptr, old Protection) error {
	start, sz := PageSpan(addr, size, uintptr(os.Getpagesize()))
	return mprotect(start, sz, int(old))
}

func mprotect(start, size uintptr, prot int) error {
	page := unsafe.Slice((*uint8)(unsafe.Pointer(start)), size)
	return unix.Mprotect(page, prot)
}

// currentProtection returns protection of the mapping(s) covering [start, start+size).
// It fails if the range spans mappings with different protection.
func currentProtection(start, size uintptr) (Protection, error) {
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	end := start + size
	found := false
	var prot Protection
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lo, hi, p, err := parseMapsLine(scanner.Text())
		if err != nil {
			return 0, err
		}
		if hi <= start || lo >= end {
			continue
		}
		if found && p != prot {
			return 0, fmt.Errorf("range %#x-%#x spans mappings with different protection", start, end)
		}
		prot, found = p, true
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("address %#x is not mapped", start)
	}
	return prot, nil
}

// parseMapsLine parses "7f0000000000-7f0000001000 r-xp ..." line.
func parseMapsLine(line string) (uintptr, uintptr, Protection, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0, 0, 0, fmt.Errorf("unexpected maps line %q", line)
	}
	lohi := strings.SplitN(fields[0], "-", 2)
	if len(lohi) != 2 {
		return 0, 0, 0, fmt.Errorf("unexpected maps range %q", fields[0])
	}
	lo, err := strconv.ParseUint(lohi[0], 16, 64)
	if err != nil {
		return 0, 0, 0, err
	}
	hi, err := strconv.ParseUint(lohi[1], 16, 64)
	if err != nil {
		return 0, 0, 0, err
	}

	var prot Protection
	perms := fields[1]
	if len(perms) < 3 {
		return 0, 0, 0, fmt.Errorf("unexpected maps permissions %q", perms)
	}
	if perms[0] == 'r' {
		prot |= unix.PROT_READ
	}
	if perms[1] == 'w' {
		prot |= unix.PROT_WRITE
	}
	if perms[2] == 'x' {
		prot |= unix.PROT_EXEC
	}
	return uintptr(lo), uintptr(hi), prot, nil
}

// MainModule is only available on Windows, the patched game is a PE executable.
func MainModule() (ModuleInfo, error) {
	return ModuleInfo{}, ErrUnsupported
}
