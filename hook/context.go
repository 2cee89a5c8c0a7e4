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

package hook

import (
	"math"
)

// Vector is a 128-bit XMM register.
type Vector struct {
	Low  uint64
	High uint64
}

func (v *Vector) U32(lane int) uint32 {
	switch lane {
	case 0:
		return uint32(v.Low)
	case 1:
		return uint32(v.Low >> 32)
	case 2:
		return uint32(v.High)
	case 3:
		return uint32(v.High >> 32)
	}
	panic("xmm lane out of range")
}

func (v *Vector) SetU32(lane int, x uint32) {
	switch lane {
	case 0:
		v.Low = v.Low&^0xFFFFFFFF | uint64(x)
	case 1:
		v.Low = v.Low&0xFFFFFFFF | uint64(x)<<32
	case 2:
		v.High = v.High&^0xFFFFFFFF | uint64(x)
	case 3:
		v.High = v.High&0xFFFFFFFF | uint64(x)<<32
	default:
		panic("xmm lane out of range")
	}
}

// F32 returns single precision float in lane 0..3.
func (v *Vector) F32(lane int) float32 {
	return math.Float32frombits(v.U32(lane))
}

func (v *Vector) SetF32(lane int, f float32) {
	v.SetU32(lane, math.Float32bits(f))
}

// F64 returns double precision float in lane 0..1.
func (v *Vector) F64(lane int) float64 {
	switch lane {
	case 0:
		return math.Float64frombits(v.Low)
	case 1:
		return math.Float64frombits(v.High)
	}
	panic("xmm lane out of range")
}

func (v *Vector) SetF64(lane int, f float64) {
	switch lane {
	case 0:
		v.Low = math.Float64bits(f)
	case 1:
		v.High = math.Float64bits(f)
	default:
		panic("xmm lane out of range")
	}
}

// FloatSave is XMM_SAVE_AREA32, the FXSAVE image.
type FloatSave struct {
	ControlWord    uint16
	StatusWord     uint16
	TagWord        uint8
	_              uint8
	ErrorOpcode    uint16
	ErrorOffset    uint32
	ErrorSelector  uint16
	_              uint16
	DataOffset     uint32
	DataSelector   uint16
	_              uint16
	MxCsr          uint32
	MxCsrMask      uint32
	FloatRegisters [8]Vector
	Xmm            [16]Vector
	_              [96]byte
}

/*
Context is register state of a thread at the hook site. It has exactly the layout of
the x64 CONTEXT structure, so on Windows the exception handler passes the record it got
from the OS without copying, and whatever the callback leaves in it is what the thread
continues with.

Rip holds the hooked address while the callback runs. A callback that sets it to
a different address resumes execution there, skipping the hooked instructions.
*/
type Context struct {
	P1Home       uint64
	P2Home       uint64
	P3Home       uint64
	P4Home       uint64
	P5Home       uint64
	P6Home       uint64
	ContextFlags uint32
	MxCsr        uint32
	SegCs        uint16
	SegDs        uint16
	SegEs        uint16
	SegFs        uint16
	SegGs        uint16
	SegSs        uint16
	EFlags       uint32
	Dr0          uint64
	Dr1          uint64
	Dr2          uint64
	Dr3          uint64
	Dr6          uint64
	Dr7          uint64
	Rax          uint64
	Rcx          uint64
	Rdx          uint64
	Rbx          uint64
	Rsp          uint64
	Rbp          uint64
	Rsi          uint64
	Rdi          uint64
	R8           uint64
	R9           uint64
	R10          uint64
	R11          uint64
	R12          uint64
	R13          uint64
	R14          uint64
	R15          uint64
	Rip          uint64
	FltSave      FloatSave
	// AVX state lives in the extended area, not here
	VectorRegister       [26]Vector
	VectorControl        uint64
	DebugControl         uint64
	LastBranchToRip      uint64
	LastBranchFromRip    uint64
	LastExceptionToRip   uint64
	LastExceptionFromRip uint64
}

// Xmm returns register XMM<i>, 0 <= i < 16.
func (c *Context) Xmm(i int) *Vector {
	return &c.FltSave.Xmm[i]
}
