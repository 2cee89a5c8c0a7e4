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

package main

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const threadPriorityHighest = 2

var (
	kernel32              = windows.NewLazySystemDLL("kernel32.dll")
	procSetThreadPriority = kernel32.NewProc("SetThreadPriority")
	procGetThreadPriority = kernel32.NewProc("GetThreadPriority")
)

// raisePriority sets THREAD_PRIORITY_HIGHEST for the current OS thread, which must be locked.
func raisePriority() error {
	r, _, err := procSetThreadPriority.Call(uintptr(windows.CurrentThread()), threadPriorityHighest)
	if r == 0 {
		return fmt.Errorf("SetThreadPriority: %w", err)
	}
	return nil
}

func threadPriority() int32 {
	r, _, _ := procGetThreadPriority.Call(uintptr(windows.CurrentThread()))
	return int32(r)
}
