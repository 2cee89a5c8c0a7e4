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

//go:build !windows && !linux

package memory

type OSProtector struct{}

func (OSProtector) Unlock(uintptr, uintptr) (Protection, error) {
	return 0, ErrUnsupported
}

func (OSProtector) Restore(uintptr, uintptr, Protection) error {
	return ErrUnsupported
}

func MainModule() (ModuleInfo, error) {
	return ModuleInfo{}, ErrUnsupported
}
