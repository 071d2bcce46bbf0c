// Package metrics holds the Prometheus collectors lupus publishes on
// /metrics.
package metrics

import (
	"net/http"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SessionsEnv carries the number of loaded sessions to child processes.
const SessionsEnv = "LUPUS_SESSIONS"

var (
	Registry = prometheus.NewRegistry()
	factory  = promauto.With(Registry)

	SessionsLoaded = factory.NewGauge(prometheus.GaugeOpts{
		Name: "lupus_sessions_loaded",
		Help: "Number of session definitions loaded at startup.",
	})
	SessionsScheduled = factory.NewGauge(prometheus.GaugeOpts{
		Name: "lupus_sessions_scheduled",
		Help: "Number of sessions whose pipe opened and are scanned for output.",
	})
	Clients = factory.NewGauge(prometheus.GaugeOpts{
		Name: "lupus_clients",
		Help: "Connected push clients.",
	})
	Tick = factory.NewGauge(prometheus.GaugeOpts{
		Name: "lupus_backup_tick",
		Help: "Current backup scheduler tick.",
	})
	Frames = factory.NewCounter(prometheus.CounterOpts{
		Name: "lupus_frames_total",
		Help: "Broadcast frames sent.",
	})
	Deliveries = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "lupus_frame_deliveries_total",
		Help: "Per-client frame deliveries by result.",
	}, []string{"result"})
	Lines = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "lupus_lines_relayed_total",
		Help: "Output lines relayed per session.",
	}, []string{"session"})
	FetchErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "lupus_fetch_errors_total",
		Help: "Failed output fetches per session.",
	}, []string{"session"})
	Backups = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "lupus_backups_total",
		Help: "Backup attempts per session by result.",
	}, []string{"session", "result"})
	BackupBytes = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "lupus_backup_bytes_total",
		Help: "Archive bytes written per session.",
	}, []string{"session"})
	BackupDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lupus_backup_duration_seconds",
		Help:    "Time taken to write one backup archive.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"session"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// PublishSessions records the loaded session count in the gauge and in the
// LUPUS_SESSIONS environment variable.
func PublishSessions(n int) error {
	SessionsLoaded.Set(float64(n))
	return os.Setenv(SessionsEnv, strconv.Itoa(n))
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
