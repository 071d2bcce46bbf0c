// Package scheduler runs the two periodic loops of the control plane: the
// output broadcast cycle and the backup trigger cycle.
package scheduler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lupus-manager/lupus/internal/bridge"
	"github.com/lupus-manager/lupus/internal/logging"
	"github.com/lupus-manager/lupus/internal/metrics"
	"github.com/lupus-manager/lupus/internal/session"
	"github.com/lupus-manager/lupus/internal/ws"
)

// Broadcaster fans a frame out to connected clients.
type Broadcaster interface {
	Broadcast(msg []byte) int
}

// BroadcastScheduler collects new output lines from every scheduled session
// and pushes them to clients as one frame per cycle.
type BroadcastScheduler struct {
	bridge   bridge.Bridge
	clients  Broadcaster
	order    []string
	cursors  session.CursorTable
	store    *session.Store
	interval time.Duration
	health   *health
	log      *logrus.Entry
}

// NewBroadcastScheduler scans the sessions in order. cursors is owned by
// the scheduler from here on and only ever moves forward. store may be nil.
func NewBroadcastScheduler(b bridge.Bridge, clients Broadcaster, order []string, cursors session.CursorTable, store *session.Store, interval time.Duration) *BroadcastScheduler {
	return &BroadcastScheduler{
		bridge:   b,
		clients:  clients,
		order:    order,
		cursors:  cursors,
		store:    store,
		interval: interval,
		health:   newHealth(failureThreshold),
		log:      logging.NewLogger("broadcast"),
	}
}

// Run executes a cycle every interval until ctx is done.
func (s *BroadcastScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cycle()
		}
	}
}

// Cycle fetches new lines for each session and broadcasts them as a single
// frame. It returns the frame and whether anything was sent.
func (s *BroadcastScheduler) Cycle() ([]byte, bool) {
	var batch []string
	for _, name := range s.order {
		cursor, ok := s.cursors.Get(name)
		if !ok {
			continue
		}
		lines, count, err := s.bridge.FetchSince(name, cursor)
		if err != nil {
			s.fetchFailed(name, err)
			continue
		}
		if s.health.recordSuccess(name) {
			s.log.WithField("session", name).Info("Session output readable again")
		}
		if len(lines) == 0 {
			continue
		}

		batch = append(batch, ws.FormatDelta(name, lines))
		s.cursors.Advance(name, count)
		s.relayed(name, len(lines))
	}

	if len(batch) == 0 {
		return nil, false
	}

	frame := ws.Frame(batch)
	delivered := s.clients.Broadcast(frame)
	metrics.Frames.Inc()
	s.log.WithFields(logrus.Fields{"sessions": len(batch), "clients": delivered}).Debug("Broadcast frame")
	return frame, true
}

// Health returns the fetch health of a session.
func (s *BroadcastScheduler) Health(name string) HealthStatus {
	return s.health.status(name)
}

func (s *BroadcastScheduler) fetchFailed(name string, err error) {
	metrics.FetchErrors.WithLabelValues(name).Inc()
	failures, changed := s.health.recordFailure(name)
	entry := s.log.WithError(err).WithFields(logrus.Fields{"session": name, "failures": failures})
	switch {
	case changed:
		entry.Error("Session output unreadable, marking failing")
	case failures < failureThreshold:
		entry.Warn("Fetching session output failed")
	default:
		entry.Debug("Fetching session output failed")
	}
	if s.store != nil {
		s.store.Modify(name, func(st *session.SessionState) { st.LastError = err.Error() })
	}
}

func (s *BroadcastScheduler) relayed(name string, n int) {
	metrics.Lines.WithLabelValues(name).Add(float64(n))
	if s.store == nil {
		return
	}
	now := time.Now()
	s.store.Modify(name, func(st *session.SessionState) {
		st.LinesRelayed += n
		st.LastLineAt = &now
		st.LastError = ""
	})
}
