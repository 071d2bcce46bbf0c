package bridge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTmux records invocations and answers has-session for known sessions.
type fakeTmux struct {
	sessions map[string]bool
	calls    [][]string
	panes    string
}

func (f *fakeTmux) run(_ context.Context, args ...string) ([]byte, error) {
	f.calls = append(f.calls, args)
	switch args[0] {
	case "has-session":
		if f.sessions[strings.TrimPrefix(args[2], "=")] {
			return nil, nil
		}
		return nil, errors.New("can't find session")
	case "list-panes":
		return []byte(f.panes), nil
	}
	return nil, nil
}

func newTestBridge(t *testing.T, fake *fakeTmux) *TmuxBridge {
	t.Helper()
	b := NewTmuxBridge(t.TempDir())
	b.run = fake.run
	return b
}

func TestParseTmuxPanes(t *testing.T) {
	input := "1234\talpha\t0\t0\n5678\talpha\t1\t0\n9012\tbeta\t2\t1\n"

	panes := parseTmuxPanes(input)
	require.Len(t, panes, 3)

	tests := []struct {
		idx         int
		sessionName string
		windowIndex int
		paneIndex   int
		panePID     int
		target      string
	}{
		{0, "alpha", 0, 0, 1234, "alpha:0.0"},
		{1, "alpha", 1, 0, 5678, "alpha:1.0"},
		{2, "beta", 2, 1, 9012, "beta:2.1"},
	}

	for _, tt := range tests {
		p := panes[tt.idx]
		assert.Equal(t, tt.sessionName, p.SessionName)
		assert.Equal(t, tt.windowIndex, p.WindowIndex)
		assert.Equal(t, tt.paneIndex, p.PaneIndex)
		assert.Equal(t, tt.panePID, p.PanePID)
		assert.Equal(t, tt.target, p.Target)
	}
}

func TestParseTmuxPanes_EmptyAndMalformed(t *testing.T) {
	assert.Empty(t, parseTmuxPanes(""))

	input := "notanumber\talpha\t0\t0\n1234\talpha\tbad\t0\n1234\t0\t0\n"
	assert.Empty(t, parseTmuxPanes(input))
}

func TestOpenPipesPane(t *testing.T) {
	fake := &fakeTmux{sessions: map[string]bool{"alpha": true}}
	b := newTestBridge(t, fake)

	require.NoError(t, b.Open(context.Background(), "alpha"))

	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{"has-session", "-t", "=alpha"}, fake.calls[0])
	assert.Equal(t, "pipe-pane", fake.calls[1][0])
	assert.Equal(t, "=alpha", fake.calls[1][2])
	assert.Equal(t, "cat >> "+shellQuote(b.LogPath("alpha")), fake.calls[1][3])
	assert.FileExists(t, b.LogPath("alpha"))

	n, err := b.LineCount("alpha")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	appendLog(t, b.LogPath("alpha"), "[Server] Done (3.2s)!\n")
	lines, n, err := b.FetchSince("alpha", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"[Server] Done (3.2s)!"}, lines)
	assert.Equal(t, 1, n)
}

func TestOpenMissingSession(t *testing.T) {
	fake := &fakeTmux{sessions: map[string]bool{}}
	b := newTestBridge(t, fake)

	err := b.Open(context.Background(), "ghost")
	require.Error(t, err)
	assert.Len(t, fake.calls, 1, "pipe-pane must not run for a missing session")

	_, err = b.LineCount("ghost")
	assert.True(t, errors.Is(err, ErrNoSession))
	_, _, err = b.FetchSince("ghost", 0)
	assert.True(t, errors.Is(err, ErrNoSession))
}

func TestOpenRejectsInvalidNames(t *testing.T) {
	fake := &fakeTmux{sessions: map[string]bool{}}
	b := newTestBridge(t, fake)

	for _, name := range []string{"", "..", "a/b", "a:b"} {
		assert.Error(t, b.Open(context.Background(), name), "name %q", name)
	}
	assert.Empty(t, fake.calls)
}

func TestPanes(t *testing.T) {
	fake := &fakeTmux{panes: "4242\talpha\t0\t0\n"}
	b := newTestBridge(t, fake)

	panes, err := b.Panes(context.Background(), "alpha")
	require.NoError(t, err)
	require.Len(t, panes, 1)
	assert.Equal(t, "alpha:0.0", panes[0].Target)
	assert.Equal(t, "=alpha", fake.calls[0][3])
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/tmp/pipes/alpha.log'`, shellQuote("/tmp/pipes/alpha.log"))
	assert.Equal(t, `'/tmp/it'\''s.log'`, shellQuote("/tmp/it's.log"))
}
