package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lupus-manager/lupus/internal/backup"
	"github.com/lupus-manager/lupus/internal/config"
	"github.com/lupus-manager/lupus/internal/session"
)

func newSessionsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List configured sessions with backup settings and live process stats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sessions, err := opts.load()
			if err != nil {
				return err
			}
			return printSessions(cmd, opts, cfg, sessions)
		},
	}
}

func printSessions(cmd *cobra.Command, opts *options, cfg *config.Config, sessions []session.Session) error {
	br := opts.newBridge(cfg)
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, bold("NAME\tWORLD\tINTERVAL\tKEEP\tBACKUPS\tLATEST\tPROCESS"))
	for _, s := range sessions {
		if !s.HasGame() {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\t-\t-\n", s.Name, dim("no game"))
			continue
		}

		interval, keep := "-", "-"
		if iv, k, ok := s.BackupPolicy(); ok {
			interval = strconv.Itoa(iv)
			keep = "unbounded"
			if k != session.UnboundedKeep {
				keep = strconv.Itoa(k)
			}
		}

		archives, err := backup.List(cfg.BackupPath(), s.Name)
		if err != nil {
			return err
		}
		latest := "-"
		if len(archives) > 0 {
			if fi, err := os.Stat(archives[len(archives)-1]); err == nil {
				latest = fmt.Sprintf("%s, %s", humanize.Bytes(uint64(fi.Size())), humanize.Time(fi.ModTime()))
			}
		}

		process := dim("not running")
		if ps, err := br.Status(cmd.Context(), s.Name); err == nil {
			process = green(fmt.Sprintf("%s pid %d, %.1f%% cpu, %s", ps.Command, ps.PID, ps.CPUPercent, humanize.Bytes(ps.RSS)))
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			s.Name, s.Game.FilePath, interval, keep, len(archives), latest, process)
	}
	return w.Flush()
}
