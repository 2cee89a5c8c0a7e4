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

package config

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const enumCurrentSettings = 0xFFFFFFFF

var (
	user32                   = windows.NewLazySystemDLL("user32.dll")
	procEnumDisplaySettingsW = user32.NewProc("EnumDisplaySettingsW")
)

// devMode is DEVMODEW for a display device.
type devMode struct {
	DeviceName       [32]uint16
	SpecVersion      uint16
	DriverVersion    uint16
	Size             uint16
	DriverExtra      uint16
	Fields           uint32
	Position         [2]int32
	Orientation      uint32
	FixedOutput      uint32
	Color            int16
	Duplex           int16
	YResolution      int16
	TTOption         int16
	Collate          int16
	FormName         [32]uint16
	LogPixels        uint16
	BitsPerPel       uint32
	PelsWidth        uint32
	PelsHeight       uint32
	DisplayFlags     uint32
	DisplayFrequency uint32
	_                [8]uint32
}

// Desktop returns resolution of the primary display.
func Desktop() (uint32, uint32, error) {
	var dm devMode
	dm.Size = uint16(unsafe.Sizeof(dm))
	r, _, err := procEnumDisplaySettingsW.Call(0, enumCurrentSettings, uintptr(unsafe.Pointer(&dm)))
	if r == 0 {
		return 0, 0, fmt.Errorf("EnumDisplaySettings: %w", err)
	}
	return dm.PelsWidth, dm.PelsHeight, nil
}
