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
Package config loads fix settings from a YAML file and derives the values fixes need
from the target resolution.

	name: TitanQuest2Fix
	masterEnable: true
	startupDelay: 5s
	resolution:
	  width: 0   # 0 means desktop resolution
	  height: 0
	fixes:
	  pillarbox:
	    enable: true
	  fov:
	    enable: false
	    value: 1.0
	  hud:
	    enable: false

Values are checked for type only.
*/
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultName is the base name of the configuration and log files.
const DefaultName = "TitanQuest2Fix"

var ErrInvalid = errors.New("invalid configuration")

type Resolution struct {
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

type Toggle struct {
	Enable bool `yaml:"enable"`
}

type FOV struct {
	Enable bool    `yaml:"enable"`
	Value  float32 `yaml:"value"`
}

type Fixes struct {
	Pillarbox Toggle `yaml:"pillarbox"`
	FOV       FOV    `yaml:"fov"`
	HUD       Toggle `yaml:"hud"`
}

// File is the content of the configuration file.
type File struct {
	Name         string        `yaml:"name"`
	MasterEnable bool          `yaml:"masterEnable"`
	StartupDelay time.Duration `yaml:"startupDelay"`
	Resolution   Resolution    `yaml:"resolution"`
	Fixes        Fixes         `yaml:"fixes"`
}

// Default returns configuration used for keys missing from the file.
func Default() File {
	return File{
		Name:         DefaultName,
		MasterEnable: true,
		StartupDelay: 5 * time.Second,
		Fixes: Fixes{
			Pillarbox: Toggle{Enable: true},
			FOV:       FOV{Value: 1},
		},
	}
}

// Load reads configuration file at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads configuration from r. Keys not known to [File] are rejected.
func Parse(r io.Reader) (*File, error) {
	f := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &f, nil
}
