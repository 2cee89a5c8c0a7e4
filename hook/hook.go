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
Package hook installs mid-function hooks into x86-64 code of the current process.

A hook redirects execution at an arbitrary instruction to a trampoline that raises a
breakpoint. The breakpoint is handled by a vectored exception handler, which gives the
callback full register state of the thread in a [Context], including XMM registers.
Whatever the callback leaves in the [Context] is what the thread continues with, and
the instructions replaced by the jump are executed from the trampoline afterwards.

Hooks are never removed. Callbacks run on whatever thread reaches the hooked address,
possibly on several threads at once, so they must not touch anything but the context.
*/
package hook

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/apex/log"
)

var (
	ErrInstall     = errors.New("cannot install hook")
	ErrUnsupported = errors.New("hooks are not supported on this platform")
)

// Callback inspects and modifies registers at the hook site.
type Callback func(*Context)

// Hooker installs hooks.
type Hooker interface {
	Install(target uintptr, cb Callback) (*Handle, error)
}

// Handle describes installed hook.
type Handle struct {
	Target uintptr
	Stub   uintptr
	Stolen int // number of original bytes moved to the stub
}

type entry struct {
	target uintptr
	resume uintptr
	cb     Callback
	log    log.Interface
}

/*
dispatch runs the callback for a thread stopped at the hook breakpoint. The callback
works on a copy, so a panicking callback leaves registers untouched. Unless the callback
moved Rip, the thread resumes with the relocated original instructions.
*/
func (e *entry) dispatch(ctx *Context) {
	regs := *ctx
	regs.Rip = uint64(e.target)
	if !e.call(&regs) {
		ctx.Rip = uint64(e.resume)
		return
	}
	if regs.Rip == uint64(e.target) {
		regs.Rip = uint64(e.resume)
	}
	*ctx = regs
}

func (e *entry) call(ctx *Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("target", fmt.Sprintf("%#x", e.target)).
				WithField("panic", r).
				Error("hook callback panicked, registers left unchanged")
			ok = false
		}
	}()
	e.cb(ctx)
	return true
}

// table maps breakpoint addresses to hooks. Readers never lock, they run inside
// the exception handler on arbitrary threads.
type table struct {
	mu      sync.Mutex
	entries atomic.Pointer[map[uintptr]*entry]
	targets map[uintptr]bool
}

func (t *table) lookup(stub uintptr) *entry {
	m := t.entries.Load()
	if m == nil {
		return nil
	}
	return (*m)[stub]
}

// reserve marks target as hooked, failing if it already is.
func (t *table) reserve(target uintptr) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.targets == nil {
		t.targets = map[uintptr]bool{}
	}
	if t.targets[target] {
		return fmt.Errorf("%w: %#x is already hooked", ErrInstall, target)
	}
	t.targets[target] = true
	return nil
}

func (t *table) release(target uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.targets, target)
}

func (t *table) publish(stub uintptr, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := map[uintptr]*entry{}
	if m := t.entries.Load(); m != nil {
		for k, v := range *m {
			next[k] = v
		}
	}
	next[stub] = e
	t.entries.Store(&next)
}
