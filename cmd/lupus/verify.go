package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/lupus-manager/lupus/internal/backup"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <manifest>...",
		Short: "Check backup archives against their BLAKE3 manifests",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				m, err := backup.Verify(path)
				if err != nil {
					fmt.Fprintf(out, "%s %s: %v\n", color.RedString("FAIL"), path, err)
					failed++
					continue
				}
				fmt.Fprintf(out, "%s %s (%s, %s, %s)\n", color.GreenString("OK"), m.Archive,
					m.Session, humanize.Bytes(uint64(m.Size)), humanize.Time(m.CreatedAt))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d archives failed verification", failed, len(args))
			}
			return nil
		},
	}
}
