// Package controller is the stream supervisor: it receives
// harvest.start.stream.*/harvest.stop.stream.* control messages and
// spawns/terminates one child OS process per long-running stream harvest.
// It is grounded on sfmutils/supervisor.py's HarvestSupervisor for the
// responsibility split, but talks to os/exec + signals directly instead of
// a supervisor.xmlrpc transport - see DESIGN.md.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/gwu-libraries/sfm-go/internal/pkg/log"
	"github.com/gwu-libraries/sfm-go/pkg/models"
)

// ProcessSpec describes how to launch the child worker for one request,
// supplied by the cmd/ entrypoint that wires the controller up (it knows the
// path to its own binary and which subcommand runs a single harvest).
type ProcessSpec struct {
	Command string
	Args    []string
	Env     []string
}

// SpecFunc builds a ProcessSpec for a given start request.
type SpecFunc func(req *models.HarvestRequest) ProcessSpec

// Controller tracks one child process per running stream harvest, keyed by
// harvest id - the Go analogue of HarvestSupervisor's per-uid process
// group bookkeeping.
type Controller struct {
	mu       sync.Mutex
	children map[string]*child
	specFunc SpecFunc
	logger   *log.FieldedLogger
}

type child struct {
	cmd    *exec.Cmd
	done   chan struct{}
}

func New(specFunc SpecFunc) *Controller {
	return &Controller{
		children: make(map[string]*child),
		specFunc: specFunc,
		logger:   log.NewFieldedLogger(&log.Fields{"component": "controller"}),
	}
}

// Start launches a child process for req, matching HarvestSupervisor.start's
// write-seed-file-then-addProcessGroup sequence (here: write the request to
// a temp file the child reads, then exec.Start).
func (c *Controller) Start(req *models.HarvestRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.children[req.ID]; exists {
		return fmt.Errorf("harvest %s is already running under this controller", req.ID)
	}

	spec := c.specFunc(req)
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting child process for %s: %w", req.ID, err)
	}

	ch := &child{cmd: cmd, done: make(chan struct{})}
	c.children[req.ID] = ch

	go func() {
		_ = cmd.Wait()
		c.mu.Lock()
		delete(c.children, req.ID)
		c.mu.Unlock()
		close(ch.done)
	}()

	c.logger.Info("started child harvest process", "harvest_id", req.ID, "pid", cmd.Process.Pid)
	return nil
}

// Stop sends SIGTERM to the child for id and waits up to grace for it to
// exit on its own, matching HarvestSupervisor.remove's stop-then-remove
// sequence (stopwaitsecs=900 in the original's generated supervisor conf).
func (c *Controller) Stop(ctx context.Context, id string, grace time.Duration) error {
	c.mu.Lock()
	ch, ok := c.children[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no running child for harvest %s", id)
	}

	if err := ch.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signaling child for %s: %w", id, err)
	}

	select {
	case <-ch.done:
		return nil
	case <-time.After(grace):
		_ = ch.cmd.Process.Kill()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PauseAll sends SIGUSR1 (pause) to every running child then stops them all,
// matching HarvestSupervisor.pause_all's signalAllProcesses("USR1") then
// stopAllProcesses() sequence - used for a controlled shutdown of the whole
// fleet.
func (c *Controller) PauseAll(ctx context.Context, grace time.Duration) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.children))
	for id := range c.children {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.mu.Lock()
		ch, ok := c.children[id]
		c.mu.Unlock()
		if ok {
			_ = ch.cmd.Process.Signal(syscall.SIGUSR1)
		}
	}

	for _, id := range ids {
		_ = c.Stop(ctx, id, grace)
	}
}

// Running reports the harvest ids this controller currently has a child
// process for.
func (c *Controller) Running() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.children))
	for id := range c.children {
		out = append(out, id)
	}
	return out
}
