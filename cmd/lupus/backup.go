package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lupus-manager/lupus/internal/backup"
	"github.com/lupus-manager/lupus/internal/session"
)

func newBackupCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "backup [session...]",
		Short: "Back up sessions now, pruning to each session's retention",
		Long: "Back up the named sessions immediately, or every session with a game\n" +
			"and a world path when no names are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sessions, err := opts.load()
			if err != nil {
				return err
			}
			targets, err := selectSessions(sessions, args)
			if err != nil {
				return err
			}
			compression, err := backup.ParseCompression(cfg.BackupCompression)
			if err != nil {
				return err
			}

			engine := backup.NewEngine(compression)
			out := cmd.OutOrStdout()
			ok := color.New(color.FgGreen).SprintFunc()
			bad := color.New(color.FgRed).SprintFunc()

			var errs []error
			for _, s := range targets {
				interval, keep, hasPolicy := s.BackupPolicy()
				if !hasPolicy {
					keep = backup.Unbounded
				}
				a, err := engine.Backup(cmd.Context(), backup.Request{
					Session:     s.Name,
					Source:      s.Game.FilePath,
					Destination: cfg.BackupPath(),
					Interval:    interval,
					Keep:        keep,
				})
				if err != nil {
					fmt.Fprintf(out, "%s %s: %v\n", bad("✗"), s.Name, err)
					errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
					continue
				}
				fmt.Fprintf(out, "%s %s: %s (%s)", ok("✓"), s.Name, a.Path, humanize.Bytes(uint64(a.Size)))
				if len(a.Pruned) > 0 {
					fmt.Fprintf(out, ", pruned %d", len(a.Pruned))
				}
				fmt.Fprintln(out)
			}
			return errors.Join(errs...)
		},
	}
}

// selectSessions returns the named sessions, or every backup-able session
// when names is empty.
func selectSessions(sessions []session.Session, names []string) ([]session.Session, error) {
	if len(names) == 0 {
		var out []session.Session
		for _, s := range sessions {
			if s.HasGame() && s.Game.FilePath != "" {
				out = append(out, s)
			}
		}
		return out, nil
	}

	byName := make(map[string]session.Session, len(sessions))
	for _, s := range sessions {
		byName[s.Name] = s
	}
	out := make([]session.Session, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown session %q", n)
		}
		if !s.HasGame() || s.Game.FilePath == "" {
			return nil, fmt.Errorf("session %q has no world to back up", n)
		}
		out = append(out, s)
	}
	return out, nil
}
