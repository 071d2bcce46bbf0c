// Package orchestrator opens the output pipe of every configured session at
// startup and records where each session's output begins.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lupus-manager/lupus/internal/bridge"
	"github.com/lupus-manager/lupus/internal/logging"
	"github.com/lupus-manager/lupus/internal/metrics"
	"github.com/lupus-manager/lupus/internal/session"
)

// Result is the outcome of Startup.
type Result struct {
	// Sessions is every loaded session, in configuration order.
	Sessions []session.Session
	// Scheduled lists the sessions that got a cursor, in startup order.
	Scheduled []string
	Cursors   session.CursorTable
	Failed    map[string]error
}

// ScheduledSessions returns the sessions that have a cursor, in startup
// order. Only these are scanned for output and backed up.
func (r *Result) ScheduledSessions() []session.Session {
	out := make([]session.Session, 0, len(r.Scheduled))
	for _, s := range r.Sessions {
		if _, ok := r.Cursors.Get(s.Name); ok {
			out = append(out, s)
		}
	}
	return out
}

type Orchestrator struct {
	bridge bridge.Bridge
	store  *session.Store
	settle time.Duration
	log    *logrus.Entry
}

// New returns an orchestrator that waits settle after each pipe is opened
// before taking the baseline line count. store may be nil.
func New(b bridge.Bridge, store *session.Store, settle time.Duration) *Orchestrator {
	return &Orchestrator{
		bridge: b,
		store:  store,
		settle: settle,
		log:    logging.NewLogger("orchestrator"),
	}
}

// Startup opens the sessions one at a time, in order. Sessions without a
// game are skipped with a warning; sessions whose pipe cannot be opened are
// reported in Result.Failed and skipped. Only cancellation of ctx aborts
// startup.
func (o *Orchestrator) Startup(ctx context.Context, sessions []session.Session) (*Result, error) {
	res := &Result{
		Sessions: append([]session.Session(nil), sessions...),
		Cursors:  session.NewCursorTable(),
		Failed:   make(map[string]error),
	}
	if o.store != nil {
		for _, s := range sessions {
			o.store.Update(session.NewState(s))
		}
	}

	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		log := o.log.WithField("session", s.Name)

		if !s.HasGame() {
			log.Warn("No game configured for session, excluding from scheduling")
			o.mark(s.Name, session.Excluded, "no game configured", nil)
			continue
		}

		count, err := o.open(ctx, s.Name)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			log.WithError(err).Error("Could not open session pipe, excluding from scheduling")
			res.Failed[s.Name] = err
			o.mark(s.Name, session.Failed, err.Error(), nil)
			continue
		}

		res.Cursors.Set(s.Name, count)
		res.Scheduled = append(res.Scheduled, s.Name)
		now := time.Now()
		o.mark(s.Name, session.Active, "", &now)
		log.WithField("baseline", count).Debug("Session pipe open")
	}

	metrics.SessionsScheduled.Set(float64(len(res.Scheduled)))
	return res, nil
}

// open opens the pipe, waits for it to settle and returns the baseline
// line count.
func (o *Orchestrator) open(ctx context.Context, name string) (int, error) {
	if err := o.bridge.Open(ctx, name); err != nil {
		return 0, fmt.Errorf("opening pipe: %w", err)
	}
	if o.settle > 0 {
		timer := time.NewTimer(o.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}
	count, err := o.bridge.LineCount(name)
	if err != nil {
		return 0, fmt.Errorf("counting lines: %w", err)
	}
	return count, nil
}

func (o *Orchestrator) mark(name string, status session.Status, reason string, openedAt *time.Time) {
	if o.store == nil {
		return
	}
	o.store.Modify(name, func(st *session.SessionState) {
		st.Status = status
		st.Reason = reason
		st.OpenedAt = openedAt
	})
}
