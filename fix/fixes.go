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
	"fmt"

	"github.com/qrdl/tq2fix/config"
	"github.com/qrdl/tq2fix/hook"
	"github.com/qrdl/tq2fix/memory"
)

// Patch overwrites bytes at fixed offset from the signature match.
type Patch struct {
	name      string
	enabled   func(*config.Settings) bool
	signature string
	bytes     string
	offset    int
}

func NewPatch(name string, enabled func(*config.Settings) bool, signature, bytes string, offset int) *Patch {
	return &Patch{name: name, enabled: enabled, signature: signature, bytes: bytes, offset: offset}
}

func (p *Patch) Name() string { return p.name }

func (p *Patch) Enabled(s *config.Settings) bool { return p.enabled(s) }

func (p *Patch) Apply(env *Env, _ *config.Settings) error {
	spec, err := memory.NewPatchSpec(p.signature, p.bytes, p.offset)
	if err != nil {
		return err
	}

	res, ok, err := memory.Apply(env.Protector, env.Image, spec)
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrNotFound, spec.Signature)
	}
	env.Log.Infof("Found '%s' @ %s", spec.Signature, env.symbol(res.Match))
	if err != nil {
		return err
	}
	env.Log.Infof("Patched '%s' @ %s", memory.FormatBytes(spec.Bytes), env.symbol(res.Patch))
	return nil
}

// Hook installs a hook at fixed offset from the signature match.
type Hook struct {
	name      string
	enabled   func(*config.Settings) bool
	signature string
	offset    int
	callback  func(*config.Settings) hook.Callback
}

func NewHook(name string, enabled func(*config.Settings) bool, signature string, offset int,
	callback func(*config.Settings) hook.Callback) *Hook {
	return &Hook{name: name, enabled: enabled, signature: signature, offset: offset, callback: callback}
}

func (h *Hook) Name() string { return h.name }

func (h *Hook) Enabled(s *config.Settings) bool { return h.enabled(s) }

func (h *Hook) Apply(env *Env, s *config.Settings) error {
	sig, err := memory.ParseSignature(h.signature)
	if err != nil {
		return err
	}
	if env.Hooker == nil {
		return hook.ErrUnsupported
	}

	addr, ok := env.Image.Find(sig)
	if !ok {
		return fmt.Errorf("%w: '%s'", ErrNotFound, sig)
	}
	env.Log.Infof("Found '%s' @ %s", sig, env.symbol(addr))

	target := addr + uintptr(h.offset)
	if _, ok := env.Image.Offset(target); !ok {
		return fmt.Errorf("%w: hook target %s", memory.ErrOutOfRange, env.symbol(target))
	}

	handle, err := env.Hooker.Install(target, h.callback(s))
	if err != nil {
		return err
	}
	env.Log.Infof("Hooked @ %s, %d bytes moved to %#x", env.symbol(handle.Target), handle.Stolen, handle.Stub)
	return nil
}
