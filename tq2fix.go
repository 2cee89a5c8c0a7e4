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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"

	"github.com/qrdl/tq2fix/config"
	"github.com/qrdl/tq2fix/fix"
	"github.com/qrdl/tq2fix/hook"
	"github.com/qrdl/tq2fix/memory"
)

// Options are collaborators of [Run]. Zero fields are replaced by defaults for the
// current process, see [DefaultOptions].
type Options struct {
	ConfigPath string
	LogPath    string
	// Ready, if not nil, signals that the game is initialised. Without it Run waits
	// for the configured startup delay.
	Ready     <-chan struct{}
	Logger    log.Interface
	Module    func() (memory.ModuleInfo, error)
	Image     func(memory.ModuleInfo) (memory.Region, error)
	Protector memory.Protector
	Hooker    hook.Hooker
	Desktop   config.DesktopFunc
	Fixes     []fix.Fix
}

// DefaultOptions returns options for the running game, with configuration and log
// files located next to the executable.
func DefaultOptions() Options {
	dir := "."
	if exe, err := os.Executable(); err == nil {
		dir = filepath.Dir(exe)
	}
	return Options{
		ConfigPath: filepath.Join(dir, config.DefaultName+".yml"),
		LogPath:    filepath.Join(dir, config.DefaultName+".log"),
		Module:     memory.MainModule,
		Image:      memory.ImageRegion,
		Protector:  memory.OSProtector{},
		Desktop:    config.Desktop,
		Fixes:      fix.Default(),
	}
}

func (o *Options) setDefaults() {
	d := DefaultOptions()
	if o.ConfigPath == "" {
		o.ConfigPath = d.ConfigPath
	}
	if o.LogPath == "" {
		o.LogPath = d.LogPath
	}
	if o.Module == nil {
		o.Module = d.Module
	}
	if o.Image == nil {
		o.Image = d.Image
	}
	if o.Protector == nil {
		o.Protector = d.Protector
	}
	if o.Desktop == nil {
		o.Desktop = d.Desktop
	}
	if o.Fixes == nil {
		o.Fixes = d.Fixes
	}
}

/*
Run applies fixes to the current process once. Every failure is logged; the returned
error is for the caller to log as well if it has somewhere to, never to act upon, the
game must keep running regardless.
*/
func Run(ctx context.Context, opts Options) ([]fix.Report, error) {
	opts.setDefaults()
	logger := opts.Logger
	if logger == nil {
		l, closer := NewLogger(opts.LogPath)
		defer closer.Close()
		logger = l
	}

	reports, err := run(ctx, opts, logger)
	if err != nil {
		logger.WithError(err).Error("Fixes not applied")
	}
	return reports, err
}

func run(ctx context.Context, opts Options, logger log.Interface) ([]fix.Report, error) {
	mod, err := opts.Module()
	if err != nil {
		return nil, fmt.Errorf("getting main module: %w", err)
	}
	banner(logger, mod)

	file, err := loadConfig(opts.ConfigPath, logger)
	if err != nil {
		return nil, err
	}
	settings := config.NewSettings(file, opts.Desktop, logger)

	if err := Wait(ctx, opts.Ready, settings.StartupDelay); err != nil {
		return nil, err
	}

	img, err := opts.Image(mod)
	if err != nil {
		return nil, fmt.Errorf("getting image of %s: %w", mod.Name, err)
	}
	logger.Infof("Module Size: %#x", img.Len())

	hooker := opts.Hooker
	if hooker == nil {
		hooker = hook.NewEngine(logger, opts.Protector)
	}
	env := &fix.Env{
		Module:    mod,
		Image:     img,
		Protector: opts.Protector,
		Hooker:    hooker,
		Log:       logger,
	}
	reports := fix.Run(env, settings, opts.Fixes...)
	for _, r := range reports {
		logger.WithField("fix", r.Fix).WithField("status", r.Status).Info("Done")
	}
	return reports, nil
}

// loadConfig reads the configuration file. Missing file means defaults.
func loadConfig(path string, logger log.Interface) (*config.File, error) {
	f, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("%s not found, using defaults", path)
		d := config.Default()
		return &d, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return f, nil
}

/*
Wait blocks until the game is ready. If ready is not nil it waits for it to be closed
or to receive a value, otherwise it waits for delay to pass. Wait returns early with
the context error if ctx is done first.
*/
func Wait(ctx context.Context, ready <-chan struct{}, delay time.Duration) error {
	if ready != nil {
		select {
		case <-ready:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
