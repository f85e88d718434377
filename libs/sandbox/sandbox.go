// Package sandbox defines the runtime that materializes a mount tree and runs
// the generated project, plus a lazily booted handle to own one.
package sandbox

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/cyber-nic/scaffold/libs/mount"
)

type EventKind string

const (
	EventServerReady EventKind = "server-ready"
	EventError       EventKind = "error"
)

// Event is emitted by a runtime. ServerReady is the only signal that a
// previewable URL exists.
type Event struct {
	Kind    EventKind `json:"kind"`
	Port    int       `json:"port,omitempty"`
	URL     string    `json:"url,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Process is a command spawned inside a runtime. Output must be drained by
// the caller.
type Process struct {
	Output io.Reader
	wait   func() (int, error)
}

// Wait blocks until the process exits and returns its exit code.
func (p *Process) Wait() (int, error) {
	return p.wait()
}

// Runtime is the sandbox contract.
type Runtime interface {
	Mount(ctx context.Context, tree mount.Tree) error
	Spawn(ctx context.Context, name string, args ...string) (*Process, error)
	Events() <-chan Event
	Close() error
}

type BootState int

const (
	NotStarted BootState = iota
	Booting
	Ready
)

func (s BootState) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Booting:
		return "booting"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

var ErrClosed = errors.New("sandbox handle closed")

type BootFunc func(ctx context.Context) (Runtime, error)

type bootAttempt struct {
	done chan struct{}
	rt   Runtime
	err  error
}

// Handle owns a runtime that is booted on first use. Concurrent callers share
// one in-flight boot; a failed boot leaves the handle NotStarted.
type Handle struct {
	boot BootFunc

	mu      sync.Mutex
	state   BootState
	attempt *bootAttempt
	closed  bool
}

func NewHandle(boot BootFunc) *Handle {
	return &Handle{boot: boot}
}

func (h *Handle) State() BootState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Get returns the runtime, booting it if needed.
func (h *Handle) Get(ctx context.Context) (Runtime, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}

	switch h.state {
	case Ready:
		rt := h.attempt.rt
		h.mu.Unlock()
		return rt, nil

	case Booting:
		a := h.attempt
		h.mu.Unlock()
		select {
		case <-a.done:
			return a.rt, a.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}

	default:
		a := &bootAttempt{done: make(chan struct{})}
		h.attempt = a
		h.state = Booting
		h.mu.Unlock()

		a.rt, a.err = h.boot(ctx)

		h.mu.Lock()
		if a.err != nil {
			h.state = NotStarted
			h.attempt = nil
		} else {
			h.state = Ready
		}
		h.mu.Unlock()
		close(a.done)

		return a.rt, a.err
	}
}

// Close shuts the runtime down if it was booted.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.state != Ready {
		return nil
	}
	h.state = NotStarted
	rt := h.attempt.rt
	h.attempt = nil
	return rt.Close()
}
