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
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(cb Callback) (*entry, *memory.Handler) {
	h := memory.New()
	return &entry{
		target: 0x1000,
		resume: 0x2001,
		cb:     cb,
		log:    &log.Logger{Handler: h, Level: log.DebugLevel},
	}, h
}

func TestDispatch(t *testing.T) {
	e, h := testEntry(func(c *Context) {
		assert.Equal(t, uint64(0x1000), c.Rip)
		c.Xmm(0).SetF32(0, 90)
	})

	var ctx Context
	ctx.Rip = 0x2000 // breakpoint reports the stub
	ctx.Rax = 42
	ctx.Xmm(0).SetF32(1, 7)
	ctx.Xmm(1).SetF32(0, 3)

	e.dispatch(&ctx)

	assert.Equal(t, float32(90), ctx.Xmm(0).F32(0))
	assert.Equal(t, float32(7), ctx.Xmm(0).F32(1))
	assert.Equal(t, float32(3), ctx.Xmm(1).F32(0))
	assert.Equal(t, uint64(42), ctx.Rax)
	assert.Equal(t, uint64(0x2001), ctx.Rip)
	assert.Empty(t, h.Entries)
}

func TestDispatchRipMoved(t *testing.T) {
	e, _ := testEntry(func(c *Context) {
		c.Rip = 0x3000
		c.Rax = 1
	})

	var ctx Context
	e.dispatch(&ctx)

	assert.Equal(t, uint64(0x3000), ctx.Rip)
	assert.Equal(t, uint64(1), ctx.Rax)
}

func TestDispatchPanic(t *testing.T) {
	cases := map[string]func(c *Context){
		"panic": func(c *Context) {
			c.Rax = 1
			c.Xmm(0).SetF32(0, 90)
			panic("boom")
		},
		"nil dereference": func(c *Context) {
			c.Rax = 1
			var v *Vector
			v.SetF32(0, 90)
		},
		"divide by zero": func(c *Context) {
			c.Rax = 1
			c.Rdx = c.Rax / c.Rcx
		},
		"lane out of range": func(c *Context) {
			c.Rax = 1
			c.Xmm(0).SetF32(4, 90)
		},
	}

	for name, cb := range cases {
		t.Run(name, func(t *testing.T) {
			e, h := testEntry(cb)

			var ctx Context
			ctx.Rax = 42
			ctx.Xmm(0).SetF32(0, 1)

			assert.NotPanics(t, func() { e.dispatch(&ctx) })

			assert.Equal(t, uint64(42), ctx.Rax)
			assert.Zero(t, ctx.Rdx)
			assert.Equal(t, float32(1), ctx.Xmm(0).F32(0))
			assert.Equal(t, uint64(0x2001), ctx.Rip)
			require.Len(t, h.Entries, 1)
			assert.Equal(t, log.ErrorLevel, h.Entries[0].Level)
			assert.NotNil(t, h.Entries[0].Fields["panic"])
		})
	}
}

func TestTable(t *testing.T) {
	var tbl table

	assert.Nil(t, tbl.lookup(0x2000))

	require.NoError(t, tbl.reserve(0x1000))
	assert.ErrorIs(t, tbl.reserve(0x1000), ErrInstall)
	require.NoError(t, tbl.reserve(0x1100))

	e1 := &entry{target: 0x1000}
	e2 := &entry{target: 0x1100}
	tbl.publish(0x2000, e1)
	tbl.publish(0x3000, e2)

	assert.Same(t, e1, tbl.lookup(0x2000))
	assert.Same(t, e2, tbl.lookup(0x3000))
	assert.Nil(t, tbl.lookup(0x2001))

	tbl.release(0x1100)
	assert.NoError(t, tbl.reserve(0x1100))
}

func TestTableSnapshot(t *testing.T) {
	var tbl table
	tbl.publish(0x2000, &entry{target: 0x1000})
	before := tbl.entries.Load()

	tbl.publish(0x3000, &entry{target: 0x1100})

	assert.Len(t, *before, 1)
	assert.Len(t, *tbl.entries.Load(), 2)
}
