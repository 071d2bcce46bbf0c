package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lupus-manager/lupus/internal/mock"
	"github.com/lupus-manager/lupus/internal/session"
)

type recordingClients struct {
	mu     sync.Mutex
	frames []string
}

func (r *recordingClients) Broadcast(msg []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, string(msg))
	return 1
}

func (r *recordingClients) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

// openAll opens names on a fresh mock bridge and returns cursors at the
// current line counts, as startup would.
func openAll(t *testing.T, b *mock.Bridge, names ...string) session.CursorTable {
	t.Helper()
	cursors := session.NewCursorTable()
	for _, n := range names {
		require.NoError(t, b.Open(context.Background(), n))
		count, err := b.LineCount(n)
		require.NoError(t, err)
		cursors.Set(n, count)
	}
	return cursors
}

func TestCycleNoNewLinesSendsNothing(t *testing.T) {
	b := mock.NewBridge()
	b.Append("alpha", "old", "older")
	cursors := openAll(t, b, "alpha")
	clients := &recordingClients{}
	s := NewBroadcastScheduler(b, clients, []string{"alpha"}, cursors, nil, time.Second)

	frame, sent := s.Cycle()
	assert.False(t, sent)
	assert.Nil(t, frame)
	assert.Empty(t, clients.sent())
}

func TestCycleCombinesSessionsIntoOneFrame(t *testing.T) {
	b := mock.NewBridge()
	cursors := openAll(t, b, "alpha", "beta")
	clients := &recordingClients{}
	s := NewBroadcastScheduler(b, clients, []string{"alpha", "beta"}, cursors, nil, time.Second)

	b.Append("alpha", "x", "y")
	b.Append("beta", "z")

	frame, sent := s.Cycle()
	require.True(t, sent)
	assert.Equal(t, "MSG [alpha] x\n[alpha] y\n[beta] z", string(frame))
	assert.Equal(t, []string{"MSG [alpha] x\n[alpha] y\n[beta] z"}, clients.sent())

	n, _ := cursors.Get("alpha")
	assert.Equal(t, 2, n)
	n, _ = cursors.Get("beta")
	assert.Equal(t, 1, n)

	_, sent = s.Cycle()
	assert.False(t, sent, "lines are relayed once")
}

func TestCycleCursorsMonotonic(t *testing.T) {
	b := mock.NewBridge()
	cursors := openAll(t, b, "alpha")
	s := NewBroadcastScheduler(b, &recordingClients{}, []string{"alpha"}, cursors, nil, time.Second)

	prev := 0
	for i := 0; i < 20; i++ {
		if i%3 == 0 {
			b.Append("alpha", "line")
		}
		s.Cycle()
		cur, _ := cursors.Get("alpha")
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, 7, prev)
}

func TestCycleSkipsSessionsWithoutCursor(t *testing.T) {
	b := mock.NewBridge()
	cursors := openAll(t, b, "alpha")
	require.NoError(t, b.Open(context.Background(), "lobby"))
	b.Append("lobby", "never relayed")
	clients := &recordingClients{}
	s := NewBroadcastScheduler(b, clients, []string{"lobby", "alpha"}, cursors, nil, time.Second)

	_, sent := s.Cycle()
	assert.False(t, sent)
}

func TestCycleFetchErrorSkipsOnlyThatSession(t *testing.T) {
	b := mock.NewBridge()
	cursors := openAll(t, b, "alpha", "beta")
	store := session.NewStore()
	store.Update(&session.SessionState{Name: "alpha", Status: session.Active})
	store.Update(&session.SessionState{Name: "beta", Status: session.Active})
	clients := &recordingClients{}
	s := NewBroadcastScheduler(b, clients, []string{"alpha", "beta"}, cursors, store, time.Second)

	b.Append("alpha", "lost for now")
	b.Append("beta", "ok")
	b.FailFetch("alpha", errors.New("pipe gone"))

	for i := 0; i < failureThreshold; i++ {
		s.Cycle()
	}
	assert.Equal(t, []string{"MSG [beta] ok"}, clients.sent())
	assert.Equal(t, StatusFailing, s.Health("alpha"))
	st, _ := store.Get("alpha")
	assert.Equal(t, "pipe gone", st.LastError)

	b.FailFetch("alpha", nil)
	frame, sent := s.Cycle()
	require.True(t, sent)
	assert.Equal(t, "MSG [alpha] lost for now", string(frame))
	assert.Equal(t, StatusHealthy, s.Health("alpha"))

	st, _ = store.Get("alpha")
	assert.Equal(t, 1, st.LinesRelayed)
	assert.NotNil(t, st.LastLineAt)
	assert.Empty(t, st.LastError)
}

func TestCycleSanitizesFrame(t *testing.T) {
	b := mock.NewBridge()
	cursors := openAll(t, b, "alpha")
	s := NewBroadcastScheduler(b, &recordingClients{}, []string{"alpha"}, cursors, nil, time.Second)

	b.Append("alpha", "\x1b[32m§aJoined\x1b[0m\r")
	frame, sent := s.Cycle()
	require.True(t, sent)
	assert.Equal(t, "MSG [alpha] Joined", string(frame))
}

func TestBroadcastRunStopsOnCancel(t *testing.T) {
	b := mock.NewBridge()
	cursors := openAll(t, b, "alpha")
	clients := &recordingClients{}
	s := NewBroadcastScheduler(b, clients, []string{"alpha"}, cursors, nil, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	b.Append("alpha", "hello")
	require.Eventually(t, func() bool { return len(clients.sent()) == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
