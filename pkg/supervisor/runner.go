package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Runner is one managed service. Run blocks until the service exits: nil for
// a clean stop (context cancelled), an error for a crash or startup failure.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// ProcessRunner supervises an external binary such as wstunnel. Stdout and
// stderr are appended to a per-service log file.
type ProcessRunner struct {
	Bin     string
	Args    []string
	LogPath string
}

func (p *ProcessRunner) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, p.Bin, p.Args...)
	if p.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(p.LogPath), 0o755); err == nil {
			if f, err := os.OpenFile(p.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
				defer f.Close()
				cmd.Stdout = f
				cmd.Stderr = f
			}
		}
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Bin, err)
	}
	err := cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s exited: %w", p.Bin, err)
	}
	return fmt.Errorf("%s exited unexpectedly", p.Bin)
}

// OneShotRunner wraps commands that configure something and return, like
// wg-quick up. Up runs on start; Down runs when the service is stopped. The
// runner then idles until cancelled so the supervisor treats the interface
// as a long-lived service.
type OneShotRunner struct {
	Up   func(ctx context.Context) error
	Down func() error
}

func (o *OneShotRunner) Run(ctx context.Context) error {
	if o.Up != nil {
		if err := o.Up(ctx); err != nil {
			return err
		}
	}
	<-ctx.Done()
	if o.Down != nil {
		if err := o.Down(); err != nil {
			return fmt.Errorf("teardown: %w", err)
		}
	}
	return nil
}
