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
Command tq2fix is the fix DLL. Build it with

	GOOS=windows GOARCH=amd64 CGO_ENABLED=1 go build -buildmode=c-shared -o TitanQuest2Fix.asi ./cmd/tq2fix

and put it together with TitanQuest2Fix.yml next to the game executable.
*/
package main

import "C"

import (
	"context"
	"runtime"

	"github.com/qrdl/tq2fix"
)

// init runs when the DLL is loaded. The loader lock is held at that time, so all the
// work is done on a separate thread.
func init() {
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		// scan before the game threads get far, not fatal if refused
		_ = raisePriority()
		// failures are in the log, the game keeps running
		_, _ = tq2fix.Run(context.Background(), tq2fix.DefaultOptions())
	}()
}

func main() {}
