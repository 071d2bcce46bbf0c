// Package mock provides an in-memory process bridge and a generator that
// fills it with synthetic game-server output, for running without tmux.
package mock

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lupus-manager/lupus/internal/bridge"
)

// OpenCall records one Open invocation.
type OpenCall struct {
	Name string
	At   time.Time
}

// Bridge is an in-memory bridge.Bridge. Lines are appended with Append and
// counted like a pipe log.
type Bridge struct {
	mu        sync.Mutex
	lines     map[string][]string
	opened    map[string]bool
	openErr   map[string]error
	fetchErr  map[string]error
	openCalls []OpenCall
}

var _ bridge.Bridge = (*Bridge)(nil)

func NewBridge() *Bridge {
	return &Bridge{
		lines:    make(map[string][]string),
		opened:   make(map[string]bool),
		openErr:  make(map[string]error),
		fetchErr: make(map[string]error),
	}
}

// FailOpen makes Open fail for name with err.
func (b *Bridge) FailOpen(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openErr[name] = err
}

// FailFetch makes FetchSince fail for name with err. A nil err clears it.
func (b *Bridge) FailFetch(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.fetchErr, name)
		return
	}
	b.fetchErr[name] = err
}

// Append adds output lines for name. Lines may be appended before Open, in
// which case they form the session's existing backlog.
func (b *Bridge) Append(name string, lines ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[name] = append(b.lines[name], lines...)
}

// OpenCalls returns the Open invocations in call order.
func (b *Bridge) OpenCalls() []OpenCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]OpenCall, len(b.openCalls))
	copy(out, b.openCalls)
	return out
}

// Opened returns the sessions that opened successfully.
func (b *Bridge) Opened() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, c := range b.openCalls {
		if b.opened[c.Name] {
			names = append(names, c.Name)
		}
	}
	return names
}

func (b *Bridge) Open(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openCalls = append(b.openCalls, OpenCall{Name: name, At: time.Now()})
	if err := b.openErr[name]; err != nil {
		return err
	}
	b.opened[name] = true
	return nil
}

func (b *Bridge) LineCount(name string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened[name] {
		return 0, fmt.Errorf("%w: %s", bridge.ErrNoSession, name)
	}
	return len(b.lines[name]), nil
}

func (b *Bridge) FetchSince(name string, cursor int) ([]string, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opened[name] {
		return nil, 0, fmt.Errorf("%w: %s", bridge.ErrNoSession, name)
	}
	if err := b.fetchErr[name]; err != nil {
		return nil, 0, err
	}
	all := b.lines[name]
	if cursor >= len(all) {
		return nil, len(all), nil
	}
	if cursor < 0 {
		cursor = 0
	}
	out := make([]string, len(all)-cursor)
	copy(out, all[cursor:])
	return out, len(all), nil
}

// Status reports the current process, since mock sessions have no process
// of their own.
func (b *Bridge) Status(ctx context.Context, name string) (*bridge.ProcessStats, error) {
	b.mu.Lock()
	opened := b.opened[name]
	b.mu.Unlock()
	if !opened {
		return nil, fmt.Errorf("%w: %s", bridge.ErrNoSession, name)
	}
	ps, err := bridge.TreeStats(ctx, os.Getpid())
	if err != nil {
		return nil, err
	}
	ps.Target = "mock:" + name
	return ps, nil
}
