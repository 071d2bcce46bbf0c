package bridge

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeStatsSelf(t *testing.T) {
	stats, err := TreeStats(context.Background(), os.Getpid())
	require.NoError(t, err)

	assert.Equal(t, os.Getpid(), stats.PID)
	assert.GreaterOrEqual(t, stats.Processes, 1)
	assert.NotZero(t, stats.RSS)
	assert.False(t, stats.StartedAt.IsZero())
}

func TestStatusWithoutPanes(t *testing.T) {
	b := newTestBridge(t, &fakeTmux{})
	_, err := b.Status(context.Background(), "alpha")
	assert.ErrorIs(t, err, ErrNoSession)
}
