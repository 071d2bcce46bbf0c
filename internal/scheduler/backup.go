package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lupus-manager/lupus/internal/backup"
	"github.com/lupus-manager/lupus/internal/logging"
	"github.com/lupus-manager/lupus/internal/metrics"
	"github.com/lupus-manager/lupus/internal/session"
)

// Engine performs one backup.
type Engine interface {
	Backup(ctx context.Context, req backup.Request) (*backup.Archive, error)
}

// BackupScheduler counts ticks and triggers a backup for each session
// whose interval divides the current tick.
type BackupScheduler struct {
	engine      Engine
	sessions    []session.Session
	destination string
	period      time.Duration
	store       *session.Store
	tick        atomic.Uint64
	health      *health
	log         *logrus.Entry
}

// NewBackupScheduler evaluates the given sessions, which should be the ones
// that were scheduled at startup. store may be nil.
func NewBackupScheduler(engine Engine, sessions []session.Session, destination string, period time.Duration, store *session.Store) *BackupScheduler {
	return &BackupScheduler{
		engine:      engine,
		sessions:    sessions,
		destination: destination,
		period:      period,
		store:       store,
		health:      newHealth(failureThreshold),
		log:         logging.NewLogger("backup-scheduler"),
	}
}

// Due reports whether a session with the given interval is backed up on
// tick. The first backup happens at twice the interval.
func Due(tick uint64, interval int) bool {
	if interval <= 0 {
		return false
	}
	iv := uint64(interval)
	return tick%iv == 0 && tick > iv
}

// Tick returns the number of completed cycles.
func (s *BackupScheduler) Tick() uint64 {
	return s.tick.Load()
}

// Run executes a cycle every period until ctx is done.
func (s *BackupScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle advances the tick and runs the backups due on it.
func (s *BackupScheduler) Cycle(ctx context.Context) {
	tick := s.tick.Add(1)
	metrics.Tick.Set(float64(tick))

	for _, sess := range s.sessions {
		interval, keep, ok := sess.BackupPolicy()
		if !ok || !Due(tick, interval) {
			continue
		}
		s.backup(ctx, sess, interval, keep, tick)
	}
}

func (s *BackupScheduler) backup(ctx context.Context, sess session.Session, interval, keep int, tick uint64) {
	log := s.log.WithFields(logrus.Fields{"session": sess.Name, "tick": tick})
	if sess.Game.FilePath == "" {
		log.Warn("No file_path configured, skipping backup")
		metrics.Backups.WithLabelValues(sess.Name, "skipped").Inc()
		return
	}

	start := time.Now()
	archive, err := s.engine.Backup(ctx, backup.Request{
		Session:     sess.Name,
		Source:      sess.Game.FilePath,
		Destination: s.destination,
		Interval:    interval,
		Keep:        keep,
	})
	metrics.BackupDuration.WithLabelValues(sess.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.Backups.WithLabelValues(sess.Name, "failed").Inc()
		failures, changed := s.health.recordFailure(sess.Name)
		entry := log.WithError(err).WithField("failures", failures)
		if changed {
			entry.Error("Backups keep failing, marking failing")
		} else {
			entry.Warn("Backup failed")
		}
		if s.store != nil {
			s.store.Modify(sess.Name, func(st *session.SessionState) { st.LastError = err.Error() })
		}
		return
	}

	metrics.Backups.WithLabelValues(sess.Name, "ok").Inc()
	metrics.BackupBytes.WithLabelValues(sess.Name).Add(float64(archive.Size))
	if s.health.recordSuccess(sess.Name) {
		log.Info("Backups recovered")
	}
	log.WithFields(logrus.Fields{"archive": archive.Path, "size": archive.Size, "pruned": len(archive.Pruned)}).Info("Backup complete")

	if s.store != nil {
		now := time.Now()
		s.store.Modify(sess.Name, func(st *session.SessionState) {
			st.BackupCount++
			st.LastBackupAt = &now
			st.LastBackupPath = archive.Path
			st.LastError = ""
		})
	}
}

// Health returns the backup health of a session.
func (s *BackupScheduler) Health(name string) HealthStatus {
	return s.health.status(name)
}
