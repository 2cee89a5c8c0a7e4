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
Package tq2fix fixes ultrawide issues of Titan Quest 2 from inside the game process.

It is built as a DLL (see cmd/tq2fix) that is loaded into the game, e.g. by an ASI
loader. Once loaded it waits until the game is initialised, then finds the code to change
by byte signatures in the game executable image and either patches it in place or hooks it.

# Fixes

  - pillarbox: removes black bars the game draws in-game on screens wider than 21:9
  - fov: overrides computed field of view
  - hud: keeps HUD elements in a centred 16:9 box

Every fix is enabled in TitanQuest2Fix.yml, next to the game executable:

	name: TitanQuest2Fix
	masterEnable: true
	startupDelay: 5s
	resolution:
	  width: 0
	  height: 0
	fixes:
	  pillarbox:
	    enable: true
	  fov:
	    enable: false
	    value: 1.0
	  hud:
	    enable: false

Zero resolution means the desktop resolution. What has been done, and what has not,
is written to TitanQuest2Fix.log.

# Platforms supported

The game is a Windows x86-64 executable, so is the DLL. Signature scanning and static
patching also work on Linux, which is what tests use; hooks need Windows.

Typical use of the packages outside of the DLL:

	mod, _ := memory.MainModule()
	img, _ := memory.ImageRegion(mod)
	spec, _ := memory.NewPatchSpec("80 3D ?? ?? ?? ?? 00 74 78", "01", 6)
	res, found, err := memory.Apply(memory.OSProtector{}, img, spec)
*/
package tq2fix
