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

package tq2fix

import (
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/apex/log"
	"github.com/apex/log/handlers/discard"
	"github.com/apex/log/handlers/logfmt"

	"github.com/qrdl/tq2fix/memory"
)

// NewLogger returns logger writing to file at path. If the file cannot be created
// the logger discards everything. Closer closes the file.
func NewLogger(path string) (*log.Logger, io.Closer) {
	f, err := os.Create(path)
	if err != nil {
		return &log.Logger{Handler: discard.New(), Level: log.DebugLevel}, io.NopCloser(nil)
	}
	return &log.Logger{Handler: logfmt.New(f), Level: log.DebugLevel}, f
}

func banner(logger log.Interface, mod memory.ModuleInfo) {
	version := "(devel)"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}

	logger.Info("-------------------------------------")
	logger.Infof("Compiler: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	logger.Infof("Version: %s", version)
	logger.Infof("Module Name: %s", mod.Name)
	logger.Infof("Module Path: %s", mod.Path)
	logger.Infof("Module Addr: %#x", mod.Base)
}
