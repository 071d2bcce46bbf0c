// Package bridge connects the control plane to the supervised game-server
// processes. Each session's console output is piped into a log file whose
// complete lines are counted and fetched incrementally.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoSession is returned for sessions that were never opened.
var ErrNoSession = errors.New("session not opened")

// Bridge owns the pipes to the supervised processes.
type Bridge interface {
	// Open starts piping the session's output. It must be called before
	// LineCount or FetchSince for that session.
	Open(ctx context.Context, name string) error

	// LineCount returns the number of complete lines piped so far.
	LineCount(name string) (int, error)

	// FetchSince returns the complete lines after the first cursor lines,
	// in output order, together with the current line count.
	FetchSince(name string, cursor int) ([]string, int, error)
}

// validName rejects names that cannot be used as tmux targets or file names.
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\:\x00") {
		return fmt.Errorf("invalid session name %q", name)
	}
	return nil
}
