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
	"github.com/apex/log"
)

const nativeAspectRatio = float32(16.0 / 9.0)

// DesktopFunc returns current desktop resolution.
type DesktopFunc func() (width, height uint32, err error)

/*
Settings is the configuration together with values derived from the resolution. The
game renders HUD in a 16:9 box of NativeWidth pixels, centred with NativeOffset on
each side; WidthScale is how much wider the screen is than that box.
*/
type Settings struct {
	File
	AspectRatio  float32
	NativeWidth  uint32
	NativeOffset float32
	WidthScale   float32
}

/*
NewSettings derives settings from f. If either resolution dimension is zero, the desktop
resolution is used instead. When the desktop cannot be queried the resolution stays zero,
all derived values are zero and fixes depending on them stay off.
*/
func NewSettings(f *File, desktop DesktopFunc, logger log.Interface) *Settings {
	s := &Settings{File: *f}
	if s.Resolution.Width == 0 || s.Resolution.Height == 0 {
		w, h, err := desktop()
		if err != nil {
			logger.WithError(err).Warn("cannot get desktop resolution")
			s.Resolution = Resolution{}
		} else {
			s.Resolution = Resolution{Width: w, Height: h}
		}
	}

	if s.Resolution.Width != 0 && s.Resolution.Height != 0 {
		width := float32(s.Resolution.Width)
		height := float32(s.Resolution.Height)
		s.AspectRatio = width / height
		s.NativeWidth = uint32(nativeAspectRatio * height)
		s.NativeOffset = (width - float32(s.NativeWidth)) / 2
		s.WidthScale = width / float32(s.NativeWidth)
	}

	s.log(logger)
	return s
}

// Scaled reports whether derived values are available.
func (s *Settings) Scaled() bool {
	return s.WidthScale > 0
}

func (s *Settings) log(logger log.Interface) {
	logger.Infof("Name: %s", s.Name)
	logger.Infof("MasterEnable: %t", s.MasterEnable)
	logger.Infof("StartupDelay: %s", s.StartupDelay)
	logger.Infof("Resolution.Width: %d", s.Resolution.Width)
	logger.Infof("Resolution.Height: %d", s.Resolution.Height)
	logger.Infof("Resolution.AspectRatio: %g", s.AspectRatio)
	logger.Infof("Normalized Width: %d", s.NativeWidth)
	logger.Infof("Normalized Offset: %g", s.NativeOffset)
	logger.Infof("Width Scaling Factor: %g", s.WidthScale)
	logger.Infof("Fixes.Pillarbox.Enable: %t", s.Fixes.Pillarbox.Enable)
	logger.Infof("Fixes.FOV.Enable: %t", s.Fixes.FOV.Enable)
	logger.Infof("Fixes.FOV.Value: %g", s.Fixes.FOV.Value)
	logger.Infof("Fixes.HUD.Enable: %t", s.Fixes.HUD.Enable)
}
