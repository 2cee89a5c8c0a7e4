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

//go:build windows && amd64

package hook

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/apex/log"
	"golang.org/x/sys/windows"

	"github.com/qrdl/tq2fix/memory"
)

const (
	exceptionBreakpoint     = 0x80000003
	exceptionContinueExec   = ^uintptr(0) // EXCEPTION_CONTINUE_EXECUTION (-1)
	exceptionContinueSearch = 0
	memFree                 = 0x10000
	allocationGranularity   = 0x10000
	maxDistance             = 0x7FF00000 // keep stub within reach of rel32 jumps
	stubSize                = 0x1000
)

var (
	kernel32                        = windows.NewLazySystemDLL("kernel32.dll")
	procAddVectoredExceptionHandler = kernel32.NewProc("AddVectoredExceptionHandler")
	procFlushInstructionCache       = kernel32.NewProc("FlushInstructionCache")
)

type exceptionRecord struct {
	ExceptionCode        uint32
	ExceptionFlags       uint32
	ExceptionRecord      *exceptionRecord
	ExceptionAddress     uintptr
	NumberParameters     uint32
	ExceptionInformation [15]uintptr
}

type exceptionPointers struct {
	Record  *exceptionRecord
	Context *Context
}

// Engine installs hooks using a vectored exception handler.
type Engine struct {
	log       log.Interface
	protector memory.Protector
	hooks     table
	once      sync.Once
	vehErr    error
}

// NewEngine creates hook engine. The site of every hook is patched with p.
func NewEngine(logger log.Interface, p memory.Protector) *Engine {
	return &Engine{log: logger, protector: p}
}

/*
Install hooks target. Installing a hook at the address that is already hooked fails
with [ErrInstall], as does any failure to build the trampoline.
*/
func (e *Engine) Install(target uintptr, cb Callback) (*Handle, error) {
	if err := e.registerHandler(); err != nil {
		return nil, err
	}
	if err := e.hooks.reserve(target); err != nil {
		return nil, err
	}

	h, err := e.install(target, cb)
	if err != nil {
		e.hooks.release(target)
		return nil, err
	}
	return h, nil
}

func (e *Engine) install(target uintptr, cb Callback) (*Handle, error) {
	stub, err := allocNear(target, stubSize)
	if err != nil {
		return nil, err
	}

	code := unsafe.Slice((*byte)(unsafe.Pointer(target)), maxStolen)
	t, err := BuildTrampoline(target, code, stub)
	if err != nil {
		windows.VirtualFree(stub, 0, windows.MEM_RELEASE)
		return nil, fmt.Errorf("%w at %#x: %w", ErrInstall, target, err)
	}

	copy(unsafe.Slice((*byte)(unsafe.Pointer(stub)), len(t.Code)), t.Code)
	var oldPerms uint32
	if err := windows.VirtualProtect(stub, stubSize, windows.PAGE_EXECUTE_READ, &oldPerms); err != nil {
		windows.VirtualFree(stub, 0, windows.MEM_RELEASE)
		return nil, fmt.Errorf("%w: protecting stub: %w", ErrInstall, err)
	}

	// the handler must know the stub before the first thread can reach it
	e.hooks.publish(stub, &entry{
		target: target,
		resume: t.Resume(),
		cb:     cb,
		log:    e.log,
	})

	site := memory.RegionAt(target, len(t.Patch))
	if err := memory.Write(e.protector, site, 0, t.Patch); err != nil {
		return nil, fmt.Errorf("%w at %#x: %w", ErrInstall, target, err)
	}
	flushInstructionCache(target, uintptr(len(t.Patch)))

	return &Handle{Target: target, Stub: stub, Stolen: t.Stolen}, nil
}

func (e *Engine) registerHandler() error {
	e.once.Do(func() {
		cb := windows.NewCallback(e.handle)
		// last in chain: faults in Go code, callbacks included, belong to the Go runtime
		// handler, stub breakpoints are outside Go code and it passes them on
		h, _, err := procAddVectoredExceptionHandler.Call(0, cb)
		if h == 0 {
			e.vehErr = fmt.Errorf("%w: AddVectoredExceptionHandler: %w", ErrInstall, err)
		}
	})
	return e.vehErr
}

func (e *Engine) handle(info *exceptionPointers) uintptr {
	rec := info.Record
	if rec == nil || rec.ExceptionCode != exceptionBreakpoint {
		return exceptionContinueSearch
	}
	ent := e.hooks.lookup(rec.ExceptionAddress)
	if ent == nil {
		return exceptionContinueSearch
	}
	ent.dispatch(info.Context)
	return exceptionContinueExec
}

// allocNear allocates executable memory within rel32 reach of target.
func allocNear(target, size uintptr) (uintptr, error) {
	base := target &^ (allocationGranularity - 1)
	for d := uintptr(allocationGranularity); d < maxDistance; d += allocationGranularity {
		candidates := [2]uintptr{base + d, 0}
		if d < base {
			candidates[1] = base - d
		}
		for _, addr := range candidates {
			if addr == 0 {
				continue
			}
			var mbi windows.MemoryBasicInformation
			if err := windows.VirtualQuery(addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
				continue
			}
			if mbi.State != memFree {
				continue
			}
			p, err := windows.VirtualAlloc(addr, size, windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_EXECUTE_READWRITE)
			if err == nil {
				return p, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: no free memory within reach of %#x", ErrInstall, target)
}

func flushInstructionCache(addr, size uintptr) {
	procFlushInstructionCache.Call(uintptr(windows.CurrentProcess()), addr, size)
}
