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

package fix

import (
	"github.com/qrdl/tq2fix/config"
	"github.com/qrdl/tq2fix/hook"
)

/*
Viewport setup in TQ2-Win64-Shipping.exe, game version the signatures were taken from:

	+2393BC6 80 3D F868ED05 00       cmp byte ptr [+826A4C5], 00   ; pillarbox option
	+2393BCD 74 78                   je +2393C47
	+2393BCF F3 0F10 44 24 60        movss xmm0, [rsp+60]          ; pillarboxed viewport
	...
	+2393C44 48 FF E0                jmp rax
	+2393C47 F3 0F10 4C 24 60        movss xmm1, [rsp+60]          ; full screen viewport
	+2393C4D C7 80 B0020000 398EE33F mov [rax+2B0], 3FE38E39
	+2393C57 48 8B 89 E0090000       mov rcx, [rcx+9E0]
	+2393C5E 48 8B 01                mov rax, [rcx]
	+2393C61 FF 90 D0050000          call qword ptr [rax+5D0]      ; xmm1 is the field of view

The pillarbox patch turns the je into an unconditional one, so with it the game always
takes the full screen path, and so does the game itself up to 21:9.
*/
const (
	pillarboxSignature = "80 3D ?? ?? ?? ?? 00 74 78 F3 0F 10 44 24 60"
	pillarboxPatch     = "01"
	pillarboxOffset    = 6

	// hook at mov [rax+2B0], after xmm1 is loaded and before the call consumes it
	fovSignature = "F3 0F 10 4C 24 60 C7 80 B0 02 00 00 39 8E E3 3F 48 8B 89 E0 09 00 00"
	fovOffset    = 6

	/*
		HUD canvas width, hooked at the store of the divided width:

			F3 0F5E C1           divss xmm0, xmm1
			F3 0F11 83 xxxxxxxx  movss [rbx+xxxxxxxx], xmm0   ; hooked, canvas width
			48 8B ..             mov ...

		Matched by instruction bytes only, no game address is recorded for this site.
	*/
	hudSignature = "F3 0F 5E C1 F3 0F 11 83 ?? ?? ?? ?? 48 8B"
	hudOffset    = 4
)

// Default returns all fixes in the order they are applied.
func Default() []Fix {
	return []Fix{Pillarbox(), FOV(), HUD()}
}

/*
Pillarbox removes black bars the game adds in-game when aspect ratio is wider than 21:9.
The game only applies the pillarbox if the engine option byte compares equal to 0, the
patch makes it compare to 1 instead.
*/
func Pillarbox() *Patch {
	return NewPatch("pillarbox",
		func(s *config.Settings) bool { return s.MasterEnable && s.Fixes.Pillarbox.Enable },
		pillarboxSignature, pillarboxPatch, pillarboxOffset)
}

/*
FOV replaces the field of view passed to the camera on the full screen viewport path
with the configured value. The pillarboxed path, taken above 21:9 with the pillarbox fix
off, is left alone.
*/
func FOV() *Hook {
	return NewHook("fov",
		func(s *config.Settings) bool { return s.MasterEnable && s.Fixes.FOV.Enable },
		fovSignature, fovOffset,
		func(s *config.Settings) hook.Callback {
			fov := s.Fixes.FOV.Value
			return func(c *hook.Context) {
				c.Xmm(1).SetF32(0, fov)
			}
		})
}

// HUD narrows HUD layout width to the centred 16:9 box.
func HUD() *Hook {
	return NewHook("hud",
		func(s *config.Settings) bool { return s.MasterEnable && s.Fixes.HUD.Enable && s.Scaled() },
		hudSignature, hudOffset,
		func(s *config.Settings) hook.Callback {
			scale := s.WidthScale
			return func(c *hook.Context) {
				x := c.Xmm(0)
				x.SetF32(0, x.F32(0)/scale)
			}
		})
}
