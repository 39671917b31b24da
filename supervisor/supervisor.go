// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package supervisor runs several copies of the gateway behind one port.
//
// The supervisor process starts N children of its own executable marked with
// EnvWorker. Each child binds the shared port through Listen, which sets
// SO_REUSEPORT so the kernel spreads connections across workers. A child
// that exits is restarted with exponential backoff until the supervisor's
// context is cancelled.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"oddsgate/platform/shared/logger"
)

const (
	// EnvWorker marks a child process.
	EnvWorker = "ODDSGATE_WORKER"
	// EnvWorkerID carries the child's slot number.
	EnvWorkerID = "ODDSGATE_WORKER_ID"
)

// IsWorker reports whether this process was started by a supervisor.
func IsWorker() bool {
	return os.Getenv(EnvWorker) == "1"
}

// Config sizes and wires a Supervisor.
type Config struct {
	Workers int
	// Command builds the process for slot id. Defaults to SelfCommand.
	Command    func(id int) *exec.Cmd
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// StableAfter resets the backoff for a worker that ran at least this long.
	StableAfter time.Duration
	// StopTimeout is how long a worker may take to exit after SIGTERM.
	StopTimeout time.Duration
	Logger      *logger.Logger
	// OnExit observes every worker exit that was not requested.
	OnExit func(id int, err error)
}

// Supervisor keeps Workers children running.
type Supervisor struct {
	cfg Config
	log *logger.Logger
}

// New returns a Supervisor for cfg.
func New(cfg Config) *Supervisor {
	if cfg.Command == nil {
		cfg.Command = SelfCommand
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.StableAfter <= 0 {
		cfg.StableAfter = 30 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 15 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Supervisor{cfg: cfg, log: log}
}

// SelfCommand re-executes the current binary with its arguments as worker id.
func SelfCommand(id int) *exec.Cmd {
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), EnvWorker+"=1", EnvWorkerID+"="+strconv.Itoa(id))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has exited.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.cfg.Workers < 1 {
		return fmt.Errorf("supervisor: need at least one worker, got %d", s.cfg.Workers)
	}
	s.log.Info("", "", "supervisor starting workers", map[string]interface{}{"workers": s.cfg.Workers})

	var wg sync.WaitGroup
	for id := 0; id < s.cfg.Workers; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.keep(ctx, id)
		}(id)
	}
	wg.Wait()
	s.log.Info("", "", "supervisor stopped", nil)
	return nil
}

// keep runs slot id until ctx is done, restarting it when it exits.
func (s *Supervisor) keep(ctx context.Context, id int) {
	backoff := s.cfg.MinBackoff
	for {
		started := time.Now()
		err := s.runOnce(ctx, s.cfg.Command(id))
		if ctx.Err() != nil {
			return
		}

		fields := map[string]interface{}{"worker": id, "uptime_ms": time.Since(started).Milliseconds()}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.log.Warn("", "", "worker exited, restarting", fields)
		if s.cfg.OnExit != nil {
			s.cfg.OnExit(id, err)
		}

		if time.Since(started) >= s.cfg.StableAfter {
			backoff = s.cfg.MinBackoff
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

var errNoProcess = errors.New("supervisor: worker did not start")

func (s *Supervisor) runOnce(ctx context.Context, cmd *exec.Cmd) error {
	if cmd == nil {
		return errNoProcess
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		s.log.Warn("", "", "worker ignored SIGTERM, killing", map[string]interface{}{"pid": cmd.Process.Pid})
		_ = cmd.Process.Kill()
		return <-done
	}
}
