// File: cmd/watch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/registry"
)

func newWatchCmd(a *app) *cobra.Command {
	var count int
	c := &cobra.Command{
		Use:   "watch",
		Short: "Print card changes as commits land",
		Long: `Poll the registry generation and print the cards that changed with each
commit. The poll interval (watch.interval) is re-read when the config file
changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			h, err := a.openHandle(ctx, true)
			if err != nil {
				return err
			}
			return a.watch(ctx, h, cmd.OutOrStdout(), count)
		},
	}
	c.Flags().IntVar(&count, "count", 0, "exit after this many commits (0 = forever)")
	return c
}

func (a *app) watch(ctx context.Context, h *registry.Handle, out io.Writer, count int) error {
	prev, err := h.Snapshot(ctx)
	if err != nil {
		return err
	}
	printf(out, "# watching generation %d\n", prev.Generation)

	reset := make(chan time.Duration, 1)
	a.ctl.OnReload(func() {
		v, ok := a.ctl.Config().Get("watch.interval")
		if !ok {
			return
		}
		if d, ok := v.(time.Duration); ok && d > 0 {
			select {
			case reset <- d:
			default:
			}
		}
	})
	if a.v.ConfigFileUsed() != "" {
		a.v.OnConfigChange(func(e fsnotify.Event) {
			if err := a.reloadConfig(); err != nil {
				a.log.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
				return
			}
			a.log.Info("config reloaded", zap.String("file", e.Name))
		})
		a.v.WatchConfig()
	}

	ticker := time.NewTicker(a.cfg.Watch.Interval)
	defer ticker.Stop()
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-reset:
			ticker.Reset(d)
			a.log.Debug("watch interval changed", zap.Duration("interval", d))
		case <-ticker.C:
			changed, _, err := h.Changed(prev.Generation)
			if err != nil {
				return err
			}
			if !changed {
				continue
			}
			cur, err := h.Snapshot(ctx)
			if errors.Is(err, api.ErrReadTimeout) {
				a.log.Warn("registry busy; showing stale data", zap.Error(err))
				continue
			}
			if err != nil {
				return err
			}
			printf(out, "# generation %d\n", cur.Generation)
			for _, ch := range registry.Diff(prev, cur) {
				printf(out, "%s\n", formatChange(ch))
			}
			prev = cur
			a.ctl.Metrics().Add("watch.commits_seen", 1)
			seen++
			if count > 0 && seen >= count {
				return nil
			}
		}
	}
}

func formatChange(c registry.Change) string {
	switch c.Kind {
	case registry.Added:
		return fmt.Sprintf("%s %-8s %s", c.Kind, c.Key, c.New)
	case registry.Removed:
		return fmt.Sprintf("%s %-8s %s", c.Kind, c.Key, c.Old)
	default:
		return fmt.Sprintf("%s %-8s %s -> %s", c.Kind, c.Key, c.Old, c.New)
	}
}
