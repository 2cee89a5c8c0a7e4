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

package tq2fix

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/apex/log"
	logmem "github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrdl/tq2fix/config"
	"github.com/qrdl/tq2fix/fix"
	"github.com/qrdl/tq2fix/hook"
	"github.com/qrdl/tq2fix/memory"
)

const gameBase = uintptr(0x140000000)

var pillarboxCode = []byte{0x80, 0x3D, 0xF8, 0x68, 0xED, 0x05, 0x00, 0x74, 0x78, 0xF3, 0x0F, 0x10, 0x44, 0x24, 0x60}

type nopHooker struct{ calls int }

func (h *nopHooker) Install(target uintptr, _ hook.Callback) (*hook.Handle, error) {
	h.calls++
	return &hook.Handle{Target: target}, nil
}

type game struct {
	img    []byte
	logs   *logmem.Handler
	hooker *nopHooker
	opts   Options
}

func newGame(t *testing.T, cfg string) *game {
	g := &game{
		img:    make([]byte, 0x40),
		logs:   logmem.New(),
		hooker: &nopHooker{},
	}
	copy(g.img[0x20:], pillarboxCode)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "TitanQuest2Fix.yml")
	if cfg != "" {
		require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	}
	ready := make(chan struct{})
	close(ready)

	g.opts = Options{
		ConfigPath: cfgPath,
		LogPath:    filepath.Join(dir, "TitanQuest2Fix.log"),
		Ready:      ready,
		Logger:     &log.Logger{Handler: g.logs, Level: log.DebugLevel},
		Module: func() (memory.ModuleInfo, error) {
			return memory.ModuleInfo{Base: gameBase, Name: "TQ2-Win64-Shipping.exe", Path: `C:\Games\TQ2-Win64-Shipping.exe`}, nil
		},
		Image: func(mod memory.ModuleInfo) (memory.Region, error) {
			return memory.NewRegion(mod.Base, g.img), nil
		},
		Protector: memory.NopProtector{},
		Hooker:    g.hooker,
		Desktop: func() (uint32, uint32, error) {
			return 3440, 1440, nil
		},
	}
	return g
}

func (g *game) messages() []string {
	var msgs []string
	for _, e := range g.logs.Entries {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

func statuses(reports []fix.Report) []fix.Status {
	var st []fix.Status
	for _, r := range reports {
		st = append(st, r.Status)
	}
	return st
}

func TestRun(t *testing.T) {
	g := newGame(t, `
masterEnable: true
fixes:
  pillarbox:
    enable: true
  fov:
    enable: true
    value: 1.5
`)

	reports, err := Run(context.Background(), g.opts)
	require.NoError(t, err)

	assert.Equal(t, []fix.Status{fix.StatusApplied, fix.StatusNotFound, fix.StatusDisabled}, statuses(reports))
	assert.Equal(t, byte(0x01), g.img[0x26])
	assert.Zero(t, g.hooker.calls)

	msgs := g.messages()
	assert.Contains(t, msgs, "Module Name: TQ2-Win64-Shipping.exe")
	assert.Contains(t, msgs, "Module Addr: 0x140000000")
	assert.Contains(t, msgs, "Resolution.Width: 3440")
	assert.Contains(t, msgs, "Patched '01' @ TQ2-Win64-Shipping.exe+26")
}

func TestRunMasterDisabled(t *testing.T) {
	g := newGame(t, "masterEnable: false\n")

	reports, err := Run(context.Background(), g.opts)
	require.NoError(t, err)

	assert.Equal(t, []fix.Status{fix.StatusDisabled, fix.StatusDisabled, fix.StatusDisabled}, statuses(reports))
	assert.Equal(t, byte(0x00), g.img[0x26])
}

func TestRunMissingConfig(t *testing.T) {
	g := newGame(t, "")

	reports, err := Run(context.Background(), g.opts)
	require.NoError(t, err)

	assert.Equal(t, fix.StatusApplied, reports[0].Status)
	assert.Equal(t, byte(0x01), g.img[0x26])
	require.NotEmpty(t, g.logs.Entries)
	var warned bool
	for _, e := range g.logs.Entries {
		warned = warned || (e.Level == log.WarnLevel && strings.Contains(e.Message, "not found, using defaults"))
	}
	assert.True(t, warned)
}

func TestRunInvalidConfig(t *testing.T) {
	g := newGame(t, "masterEnable: maybe\n")

	reports, err := Run(context.Background(), g.opts)

	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Nil(t, reports)
	assert.Equal(t, byte(0x00), g.img[0x26])
	last := g.logs.Entries[len(g.logs.Entries)-1]
	assert.Equal(t, log.ErrorLevel, last.Level)
}

func TestRunModuleFailure(t *testing.T) {
	g := newGame(t, "")
	g.opts.Module = func() (memory.ModuleInfo, error) {
		return memory.ModuleInfo{}, memory.ErrUnsupported
	}

	_, err := Run(context.Background(), g.opts)
	assert.ErrorIs(t, err, memory.ErrUnsupported)
}

func TestRunImageFailure(t *testing.T) {
	g := newGame(t, "")
	g.opts.Image = func(memory.ModuleInfo) (memory.Region, error) {
		return memory.Region{}, memory.ErrNotPE
	}

	_, err := Run(context.Background(), g.opts)
	assert.ErrorIs(t, err, memory.ErrNotPE)
}

func TestRunCancelled(t *testing.T) {
	g := newGame(t, "")
	g.opts.Ready = make(chan struct{})
	imaged := false
	g.opts.Image = func(mod memory.ModuleInfo) (memory.Region, error) {
		imaged = true
		return memory.NewRegion(mod.Base, g.img), nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, g.opts)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, imaged)
	assert.Equal(t, byte(0x00), g.img[0x26])
}

func TestWait(t *testing.T) {
	ctx := context.Background()

	ready := make(chan struct{})
	close(ready)
	assert.NoError(t, Wait(ctx, ready, time.Hour))

	start := time.Now()
	assert.NoError(t, Wait(ctx, nil, 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.NoError(t, Wait(ctx, nil, 0))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, Wait(cancelled, make(chan struct{}), 0), context.Canceled)
	assert.ErrorIs(t, Wait(cancelled, nil, time.Hour), context.Canceled)
}

func TestWaitSignal(t *testing.T) {
	ready := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- Wait(context.Background(), ready, 0)
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before ready")
	case <-time.After(10 * time.Millisecond):
	}

	ready <- struct{}{}
	assert.NoError(t, <-done)
}

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TitanQuest2Fix.log")

	logger, closer := NewLogger(path)
	logger.WithField("fix", "pillarbox").Info("Fix Enabled")
	require.NoError(t, closer.Close())

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "level=info")
	assert.Contains(t, string(buf), `message="Fix Enabled"`)
	assert.Contains(t, string(buf), "fix=pillarbox")
}

func TestNewLoggerUnwritable(t *testing.T) {
	logger, closer := NewLogger(filepath.Join(t.TempDir(), "missing", "x.log"))
	assert.NotPanics(t, func() { logger.Error("lost") })
	assert.NoError(t, closer.Close())
}

func TestRunLogsToFile(t *testing.T) {
	g := newGame(t, "")
	g.opts.Logger = nil

	_, err := Run(context.Background(), g.opts)
	require.NoError(t, err)

	buf, err := os.ReadFile(g.opts.LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(buf), "Patched '01'")
}
