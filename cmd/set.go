// File: cmd/set.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/registry"
)

func newSetCmd(a *app) *cobra.Command {
	s := registry.DefaultSetup()
	var gbt, dryRun bool

	c := &cobra.Command{
		Use:   "set",
		Short: "Stage and commit a complete observation setup",
		Long: `Stage every status card for one scan and publish them in a single commit.

Without --gbt the pointing, source and frequency come from the flags.
With --gbt they are read from the configured telescope feed (feed.kind).

Examples:
  guppictl set -s B1937+21 -r 19:39:38.6 -d +21:34:59.1 -f 1410 -n 3
  guppictl set --cal -n 7
  guppictl set --gbt -n 12
  guppictl set --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var tf api.TelescopeFeed
			if gbt {
				s.Mode = api.ModeFeed
				var err error
				if tf, err = a.openFeed(); err != nil {
					return err
				}
			}
			h, err := a.openHandle(ctx, false, func(o *registry.Options) { o.Feed = tf })
			if err != nil {
				return err
			}

			b, err := h.StageObservation(ctx, s)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun {
				for _, c := range b.Cards() {
					printf(out, "%s\n", c.HeaderLine())
				}
				printf(out, "# dry run: %d cards staged, nothing committed\n", b.Len())
				return nil
			}
			res, err := h.Commit(ctx, b)
			if err != nil {
				return err
			}
			if len(res.Truncated) > 0 {
				a.log.Warn("text truncated", zap.Strings("keys", res.Truncated))
			}
			printf(out, "committed generation %d (%d cards)\n", res.Generation, res.Cards)
			return nil
		},
	}

	f := c.Flags()
	f.StringVarP(&s.Source, "src", "s", s.Source, "source name")
	f.StringVarP(&s.RA, "ra", "r", s.RA, "right ascension hh:mm:ss.s")
	f.StringVarP(&s.Dec, "dec", "d", s.Dec, "declination +dd:mm:ss.s")
	f.Float64VarP(&s.FreqMHz, "freq", "f", s.FreqMHz, "center frequency in MHz")
	f.IntVarP(&s.ScanNumber, "scannum", "n", s.ScanNumber, "scan number")
	f.Float64VarP(&s.ScanLength, "length", "l", s.ScanLength, "scan length in seconds")
	f.BoolVarP(&s.Cal, "cal", "c", false, "calibration scan")
	f.BoolVarP(&gbt, "gbt", "g", false, "take pointing and frequency from the telescope feed")
	f.BoolVar(&dryRun, "dry-run", false, "print the staged cards without committing")
	return c
}
