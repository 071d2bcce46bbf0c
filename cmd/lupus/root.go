package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lupus-manager/lupus/internal/backup"
	"github.com/lupus-manager/lupus/internal/bridge"
	"github.com/lupus-manager/lupus/internal/config"
	"github.com/lupus-manager/lupus/internal/logging"
	"github.com/lupus-manager/lupus/internal/metrics"
	"github.com/lupus-manager/lupus/internal/mock"
	"github.com/lupus-manager/lupus/internal/orchestrator"
	"github.com/lupus-manager/lupus/internal/scheduler"
	"github.com/lupus-manager/lupus/internal/session"
	"github.com/lupus-manager/lupus/internal/ws"
)

// mockInterval is how often mock sessions produce output.
const mockInterval = 500 * time.Millisecond

type options struct {
	configPath string
	mock       bool
	port       int
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "lupus",
		Short:        "Supervise game server sessions, relay their output and back up their worlds",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), opts)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to config.yaml (default: next to the lupus binary)")
	pf.BoolVar(&opts.mock, "mock", false, "Use in-memory sessions with synthetic output instead of tmux")
	pf.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Override ws_port")

	cmd.AddCommand(newSessionsCmd(opts), newBackupCmd(opts), newVerifyCmd())
	return cmd
}

// load reads config.yaml and the session definitions it points at, and
// applies the logging settings.
func (o *options) load() (*config.Config, []session.Session, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if o.port > 0 {
		cfg.WSPort = o.port
	}

	logging.Configure(logging.ResolveLevel(o.logLevel, cfg.Logging.Level), cfg.Logging.Format)

	sessions, err := config.LoadSessions(cfg.SessionsPath())
	if err != nil {
		return nil, nil, fmt.Errorf("loading sessions: %w", err)
	}
	return cfg, sessions, nil
}

// processBridge is the bridge the server and CLI talk to.
type processBridge interface {
	bridge.Bridge
	ws.ProcessStatter
}

func (o *options) newBridge(cfg *config.Config) processBridge {
	if o.mock {
		return mock.NewBridge()
	}
	return bridge.NewTmuxBridge(cfg.PipePath())
}

func serve(ctx context.Context, opts *options) error {
	start := time.Now()
	log := logging.NewLogger("lupus")

	cfg, sessions, err := opts.load()
	if err != nil {
		log.WithError(err).Fatal("Startup failed")
	}
	if err := metrics.PublishSessions(len(sessions)); err != nil {
		log.WithError(err).Warn("Could not publish session count")
	}
	compression, err := backup.ParseCompression(cfg.BackupCompression)
	if err != nil {
		log.WithError(err).Fatal("Startup failed")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := session.NewStore()
	br := opts.newBridge(cfg)
	if opts.mock {
		log.Info("Starting in mock mode")
	}

	res, err := orchestrator.New(br, store, cfg.Scheduler.SettleDelay).Startup(ctx, sessions)
	if err != nil {
		return err
	}
	if mb, ok := br.(*mock.Bridge); ok {
		mock.NewGenerator(mb, res.Scheduled, mockInterval).Start(ctx)
	}

	registry := ws.NewRegistry()
	broadcasts := scheduler.NewBroadcastScheduler(br, registry, res.Scheduled, res.Cursors, store, cfg.Scheduler.BroadcastInterval)
	backups := scheduler.NewBackupScheduler(backup.NewEngine(compression), res.ScheduledSessions(), cfg.BackupPath(), cfg.Scheduler.BackupTick, store)
	go broadcasts.Run(ctx)
	go backups.Run(ctx)

	srv := ws.NewServer(registry, store, func() ws.Status {
		return ws.Status{
			Sessions:  len(res.Sessions),
			Scheduled: len(res.Scheduled),
			Tick:      backups.Tick(),
			Uptime:    time.Since(start).Seconds(),
		}
	})
	srv.SetProcessStatter(br)

	log.Infof("manager loaded in %s, starting websocket server on %s", time.Since(start), cfg.ListenAddr())
	if err := ws.ListenAndServe(ctx, cfg.ListenAddr(), srv.Handler()); err != nil {
		return err
	}
	log.Info("Shut down")
	return nil
}
