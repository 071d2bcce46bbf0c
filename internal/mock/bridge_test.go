package mock

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/lupus-manager/lupus/internal/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeFetchSince(t *testing.T) {
	b := NewBridge()
	b.Append("alpha", "backlog")
	require.NoError(t, b.Open(context.Background(), "alpha"))

	n, err := b.LineCount("alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lines, n, err := b.FetchSince("alpha", 1)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.Equal(t, 1, n)

	b.Append("alpha", "one", "two")
	lines, n, err = b.FetchSince("alpha", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, lines)
	assert.Equal(t, 3, n)
}

func TestBridgeUnopened(t *testing.T) {
	b := NewBridge()
	_, err := b.LineCount("alpha")
	assert.True(t, errors.Is(err, bridge.ErrNoSession))
	_, _, err = b.FetchSince("alpha", 0)
	assert.True(t, errors.Is(err, bridge.ErrNoSession))
}

func TestBridgeFailures(t *testing.T) {
	b := NewBridge()
	boom := errors.New("boom")
	b.FailOpen("alpha", boom)
	assert.ErrorIs(t, b.Open(context.Background(), "alpha"), boom)
	assert.Empty(t, b.Opened())
	assert.Len(t, b.OpenCalls(), 1)

	require.NoError(t, b.Open(context.Background(), "beta"))
	b.FailFetch("beta", boom)
	_, _, err := b.FetchSince("beta", 0)
	assert.ErrorIs(t, err, boom)

	b.FailFetch("beta", nil)
	_, _, err = b.FetchSince("beta", 0)
	assert.NoError(t, err)
}

func TestGeneratorProducesOutput(t *testing.T) {
	b := NewBridge()
	names := []string{"alpha", "beta"}
	for _, n := range names {
		require.NoError(t, b.Open(context.Background(), n))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewGenerator(b, names, 5*time.Millisecond).Start(ctx)

	for _, n := range names {
		count, err := b.LineCount(n)
		require.NoError(t, err)
		assert.Equal(t, 3, count, "boot banner for %s", n)
	}

	require.Eventually(t, func() bool {
		n, _ := b.LineCount("alpha")
		return n > 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBridgeStatusReportsOwnProcess(t *testing.T) {
	b := NewBridge()
	_, err := b.Status(context.Background(), "alpha")
	assert.ErrorIs(t, err, bridge.ErrNoSession)

	require.NoError(t, b.Open(context.Background(), "alpha"))
	ps, err := b.Status(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "mock:alpha", ps.Target)
	assert.Equal(t, os.Getpid(), ps.PID)
	assert.GreaterOrEqual(t, ps.Processes, 1)
}
