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

//go:build !(windows && amd64)

package hook

import (
	"github.com/apex/log"

	"github.com/qrdl/tq2fix/memory"
)

// Engine is a stub, hooks require Windows on x86-64.
type Engine struct {
	log log.Interface
}

func NewEngine(logger log.Interface, _ memory.Protector) *Engine {
	return &Engine{log: logger}
}

func (e *Engine) Install(target uintptr, _ Callback) (*Handle, error) {
	return nil, ErrUnsupported
}
