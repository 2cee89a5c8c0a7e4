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
Package fix contains the game fixes and runs them.

Every fix is either disabled, and then it doesn't touch memory at all, or enabled, and
then it scans the image once and patches it or installs a hook once. Nothing is retried
or rolled back. Fixes are independent, failure of one doesn't affect the others.
*/
package fix

import (
	"errors"
	"fmt"

	"github.com/apex/log"

	"github.com/qrdl/tq2fix/config"
	"github.com/qrdl/tq2fix/hook"
	"github.com/qrdl/tq2fix/memory"
)

var ErrNotFound = errors.New("signature not found")

// Env is the process a fix is applied to.
type Env struct {
	Module    memory.ModuleInfo
	Image     memory.Region
	Protector memory.Protector
	Hooker    hook.Hooker
	Log       log.Interface
}

// symbol formats addr relative to the module, as in "Game.exe+2393bc6".
func (e *Env) symbol(addr uintptr) string {
	return fmt.Sprintf("%s+%x", e.Module.Name, addr-e.Module.Base)
}

// Fix is a single change to the game.
type Fix interface {
	Name() string
	Enabled(*config.Settings) bool
	Apply(*Env, *config.Settings) error
}

type Status int

const (
	StatusDisabled Status = iota
	StatusApplied
	StatusNotFound
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusApplied:
		return "applied"
	case StatusNotFound:
		return "not found"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Report is the outcome of a single fix.
type Report struct {
	Fix    string
	Status Status
	Err    error
}

// Run applies enabled fixes in order.
func Run(env *Env, s *config.Settings, fixes ...Fix) []Report {
	reports := make([]Report, 0, len(fixes))
	for _, f := range fixes {
		reports = append(reports, run(env, s, f))
	}
	return reports
}

func run(env *Env, s *config.Settings, f Fix) Report {
	l := env.Log.WithField("fix", f.Name())
	r := Report{Fix: f.Name()}

	if !f.Enabled(s) {
		l.Info("Fix Disabled")
		r.Status = StatusDisabled
		return r
	}
	l.Info("Fix Enabled")

	fe := *env
	fe.Log = l
	r.Err = apply(&fe, s, f)
	switch {
	case r.Err == nil:
		r.Status = StatusApplied
	case errors.Is(r.Err, ErrNotFound):
		r.Status = StatusNotFound
		l.WithError(r.Err).Warn("Did not find signature")
	default:
		r.Status = StatusFailed
		l.WithError(r.Err).Error("Fix failed")
	}
	return r
}

func apply(env *Env, s *config.Settings, f Fix) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return f.Apply(env, s)
}
