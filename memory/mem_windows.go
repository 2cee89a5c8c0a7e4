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
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"
)

// OSProtector changes page protection with VirtualProtect.
type OSProtector struct{}

func (OSProtector) Unlock(addr, size uintptr) (Protection, error) {
	var oldPerms uint32
	err := windows.VirtualProtect(addr, size, windows.PAGE_EXECUTE_READWRITE, &oldPerms)
	return Protection(oldPerms), err
}

func (OSProtector) Restore(addr, size uintptr, old Protection) error {
	var tmp uint32
	return windows.VirtualProtect(addr, size, uint32(old), &tmp)
}

// MainModule returns information about the executable module of the current process.
func MainModule() (ModuleInfo, error) {
	var h windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &h); err != nil {
		return ModuleInfo{}, err
	}

	var mi windows.ModuleInfo
	err := windows.GetModuleInformation(windows.CurrentProcess(), h, &mi, uint32(unsafe.Sizeof(mi)))
	if err != nil {
		return ModuleInfo{}, err
	}

	var buf [windows.MAX_PATH]uint16
	n, err := windows.GetModuleFileName(h, &buf[0], uint32(len(buf)))
	if err != nil {
		return ModuleInfo{}, err
	}
	path := windows.UTF16ToString(buf[:n])

	return ModuleInfo{
		Base:        mi.BaseOfDll,
		Name:        filepath.Base(path),
		Path:        path,
		SizeOfImage: mi.SizeOfImage,
	}, nil
}
