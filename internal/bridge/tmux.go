package bridge

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// TmuxPane represents a single tmux pane and its shell PID.
type TmuxPane struct {
	SessionName string // e.g. "alpha"
	WindowIndex int    // e.g. 0
	PaneIndex   int    // e.g. 0
	PanePID     int    // PID of the process running inside this pane
	Target      string // Pre-formatted "alpha:0.0" for tmux commands
}

// runner executes a tmux subcommand and returns its stdout.
type runner func(ctx context.Context, args ...string) ([]byte, error)

// TmuxBridge pipes each game server's tmux pane into <dir>/<name>.log using
// tmux pipe-pane. The game servers are expected to already run inside tmux
// sessions named after their session definitions.
type TmuxBridge struct {
	dir string
	run runner

	mu   sync.Mutex
	logs map[string]*logFile
}

// NewTmuxBridge returns a bridge writing pipe logs into dir.
func NewTmuxBridge(dir string) *TmuxBridge {
	return &TmuxBridge{
		dir:  dir,
		run:  runTmux,
		logs: make(map[string]*logFile),
	}
}

func runTmux(ctx context.Context, args ...string) ([]byte, error) {
	path, err := exec.LookPath("tmux")
	if err != nil {
		return nil, fmt.Errorf("tmux not found: %w", err)
	}
	out, err := exec.CommandContext(ctx, path, args...).Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("tmux %s: %s", args[0], strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("tmux %s: %w", args[0], err)
	}
	return out, nil
}

// LogPath returns the file a session's output is piped into.
func (b *TmuxBridge) LogPath(name string) string {
	return filepath.Join(b.dir, name+".log")
}

// Open checks that the tmux session exists and pipes its active pane into
// the session's log file. Reopening replaces the previous pipe.
func (b *TmuxBridge) Open(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	target := "=" + name
	if _, err := b.run(ctx, "has-session", "-t", target); err != nil {
		return fmt.Errorf("no tmux session %q: %w", name, err)
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("creating pipe dir: %w", err)
	}
	path := b.LogPath(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("creating pipe log: %w", err)
	}
	f.Close()

	if _, err := b.run(ctx, "pipe-pane", "-t", target, "cat >> "+shellQuote(path)); err != nil {
		return fmt.Errorf("piping %q: %w", name, err)
	}

	b.mu.Lock()
	b.logs[name] = &logFile{path: path}
	b.mu.Unlock()
	return nil
}

func (b *TmuxBridge) LineCount(name string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lf, ok := b.logs[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNoSession, name)
	}
	return lf.count()
}

func (b *TmuxBridge) FetchSince(name string, cursor int) ([]string, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lf, ok := b.logs[name]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrNoSession, name)
	}
	return lf.fetch(cursor)
}

// Panes lists the panes of one tmux session.
func (b *TmuxBridge) Panes(ctx context.Context, name string) ([]TmuxPane, error) {
	out, err := b.run(ctx, "list-panes", "-s", "-t", "="+name, "-F",
		"#{pane_pid}\t#{session_name}\t#{window_index}\t#{pane_index}")
	if err != nil {
		return nil, err
	}
	return parseTmuxPanes(string(out)), nil
}

// parseTmuxPanes parses the tab-separated output of tmux list-panes.
func parseTmuxPanes(output string) []TmuxPane {
	var panes []TmuxPane
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			continue
		}

		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		winIdx, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		paneIdx, err := strconv.Atoi(fields[3])
		if err != nil {
			continue
		}

		panes = append(panes, TmuxPane{
			SessionName: fields[1],
			WindowIndex: winIdx,
			PaneIndex:   paneIdx,
			PanePID:     pid,
			Target:      fmt.Sprintf("%s:%d.%d", fields[1], winIdx, paneIdx),
		})
	}
	return panes
}

// shellQuote wraps s in single quotes for the sh -c command tmux runs.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
