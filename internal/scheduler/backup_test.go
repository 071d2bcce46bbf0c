package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lupus-manager/lupus/internal/backup"
	"github.com/lupus-manager/lupus/internal/session"
)

type call struct {
	tick uint64
	req  backup.Request
}

type fakeEngine struct {
	mu    sync.Mutex
	sched *BackupScheduler
	calls []call
	fail  map[string]error
}

func (f *fakeEngine) Backup(_ context.Context, req backup.Request) (*backup.Archive, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{tick: f.sched.Tick(), req: req})
	if err := f.fail[req.Session]; err != nil {
		return nil, err
	}
	return &backup.Archive{Path: filepath.Join(req.Destination, req.Session, "a.tar"), Size: 10}, nil
}

func (f *fakeEngine) ticksFor(name string) []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ticks []uint64
	for _, c := range f.calls {
		if c.req.Session == name {
			ticks = append(ticks, c.tick)
		}
	}
	return ticks
}

func newBackupTest(sessions []session.Session, store *session.Store) (*BackupScheduler, *fakeEngine) {
	eng := &fakeEngine{fail: make(map[string]error)}
	s := NewBackupScheduler(eng, sessions, "/srv/backups", time.Second, store)
	eng.sched = s
	return s, eng
}

func TestDue(t *testing.T) {
	tests := []struct {
		tick     uint64
		interval int
		want     bool
	}{
		{5, 5, false},
		{10, 5, true},
		{11, 5, false},
		{15, 5, true},
		{1, 1, false},
		{2, 1, true},
		{0, 5, false},
		{10, 0, false},
		{10, -5, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Due(tt.tick, tt.interval), "tick=%d interval=%d", tt.tick, tt.interval)
	}
}

func TestBackupTriggersAtMultiplesAfterFirstInterval(t *testing.T) {
	sessions := []session.Session{
		{Name: "alpha", Game: &session.GameConfig{FilePath: "/srv/alpha/world", BackupInterval: 5, BackupKeep: 3}},
	}
	s, eng := newBackupTest(sessions, nil)

	for i := 0; i < 20; i++ {
		s.Cycle(context.Background())
	}

	assert.Equal(t, []uint64{10, 15, 20}, eng.ticksFor("alpha"))
	for _, c := range eng.calls {
		assert.Equal(t, backup.Request{
			Session: "alpha", Source: "/srv/alpha/world", Destination: "/srv/backups", Interval: 5, Keep: 3,
		}, c.req)
	}
	assert.Equal(t, uint64(20), s.Tick())
}

func TestBackupKeepAbsentIsUnbounded(t *testing.T) {
	sessions := []session.Session{
		{Name: "alpha", Game: &session.GameConfig{FilePath: "/srv/alpha", BackupInterval: 1}},
	}
	s, eng := newBackupTest(sessions, nil)
	s.Cycle(context.Background())
	s.Cycle(context.Background())

	require.Len(t, eng.calls, 1)
	assert.Equal(t, backup.Unbounded, eng.calls[0].req.Keep)
}

func TestBackupSkipsSessionsWithoutPolicy(t *testing.T) {
	sessions := []session.Session{
		{Name: "lobby"},
		{Name: "creative", Game: &session.GameConfig{FilePath: "/srv/creative"}},
		{Name: "nopath", Game: &session.GameConfig{BackupInterval: 1}},
	}
	s, eng := newBackupTest(sessions, nil)
	for i := 0; i < 10; i++ {
		s.Cycle(context.Background())
	}
	assert.Empty(t, eng.calls)
}

func TestBackupFailureDoesNotStopOthers(t *testing.T) {
	store := session.NewStore()
	sessions := []session.Session{
		{Name: "alpha", Game: &session.GameConfig{FilePath: "/a", BackupInterval: 1}},
		{Name: "beta", Game: &session.GameConfig{FilePath: "/b", BackupInterval: 1}},
	}
	for _, sess := range sessions {
		store.Update(session.NewState(sess))
	}
	s, eng := newBackupTest(sessions, store)
	eng.fail["alpha"] = errors.New("disk full")

	for i := 0; i < 5; i++ {
		s.Cycle(context.Background())
	}

	assert.Equal(t, []uint64{2, 3, 4, 5}, eng.ticksFor("alpha"))
	assert.Equal(t, []uint64{2, 3, 4, 5}, eng.ticksFor("beta"))
	assert.Equal(t, StatusFailing, s.Health("alpha"))
	assert.Equal(t, StatusHealthy, s.Health("beta"))

	alpha, _ := store.Get("alpha")
	assert.Equal(t, "disk full", alpha.LastError)
	assert.Zero(t, alpha.BackupCount)

	beta, _ := store.Get("beta")
	assert.Equal(t, 4, beta.BackupCount)
	assert.Equal(t, "/srv/backups/beta/a.tar", beta.LastBackupPath)
	assert.NotNil(t, beta.LastBackupAt)
}

func TestBackupSchedulerWithEngine(t *testing.T) {
	world := filepath.Join(t.TempDir(), "world")
	require.NoError(t, os.MkdirAll(world, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(world, "level.dat"), []byte("lvl"), 0o644))
	dest := t.TempDir()

	sessions := []session.Session{
		{Name: "alpha", Game: &session.GameConfig{FilePath: world, BackupInterval: 1, BackupKeep: 2}},
	}
	s := NewBackupScheduler(backup.NewEngine(backup.CompressionZstd), sessions, dest, time.Second, nil)
	s.Cycle(context.Background())
	s.Cycle(context.Background())

	archives, err := backup.List(dest, "alpha")
	require.NoError(t, err)
	require.Len(t, archives, 1)
	_, err = backup.Verify(backup.ManifestPath(archives[0]))
	assert.NoError(t, err)
}

func TestBackupRunStopsOnCancel(t *testing.T) {
	s, _ := newBackupTest(nil, nil)
	s.period = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return s.Tick() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
