// File: cmd/admin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Maintenance commands: status, unlock, unlink, config.

package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/shm"
	"github.com/momentics/guppi-status/internal/config"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print registry health, metrics and debug probes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openHandle(cmd.Context(), true)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printStats(out, h)

			stats := a.ctl.Stats()
			keys := make([]string, 0, len(stats))
			for k := range stats {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				printf(out, "%-24s %v\n", k, stats[k])
			}
			return nil
		},
	}
}

func printStats(out io.Writer, src api.StatsSource) {
	st := src.Stats()
	printf(out, "path        %s\n", st.Path)
	printf(out, "capacity    %d\n", st.Capacity)
	printf(out, "generation  %d\n", st.Generation)
	printf(out, "cards       %d\n", st.Cards)
	if !st.LastCommitAt.IsZero() {
		printf(out, "committed   %s\n", st.LastCommitAt.UTC().Format("2006-01-02T15:04:05.000Z"))
	}
	if st.LockOwner != 0 {
		printf(out, "lock        held by pid %d\n", st.LockOwner)
	} else {
		printf(out, "lock        free\n")
	}
}

func newUnlockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Clear a writer lock left by a dead process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openHandle(cmd.Context(), false)
			if err != nil {
				return err
			}
			pid, err := h.BreakStaleLock()
			if err != nil {
				return err
			}
			if pid == 0 {
				printf(cmd.OutOrStdout(), "lock not stale; nothing to do\n")
				return nil
			}
			printf(cmd.OutOrStdout(), "cleared lock held by dead pid %d\n", pid)
			return nil
		},
	}
}

func newUnlinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink",
		Short: "Remove the shared registry file",
		Long: `Remove the backing file of the registry. Processes that are already
attached keep their mapping; the next attach creates an empty registry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := shm.Unlink(a.cfg.Shm.Path); err != nil {
				return fmt.Errorf("unlink %s: %w", a.cfg.Shm.Path, err)
			}
			a.log.Info("registry unlinked", zap.String("path", a.cfg.Shm.Path))
			printf(cmd.OutOrStdout(), "removed %s\n", a.cfg.Shm.Path)
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Manage the guppictl config file",
	}
	c.AddCommand(&cobra.Command{
		Use:   "init [PATH]",
		Short: "Write the default config file if it does not exist",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultPath()
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefaultConfig(path); err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", path)
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if f := a.v.ConfigFileUsed(); f != "" {
				printf(out, "# %s\n", f)
			}
			m := a.cfg.Map()
			keys := make([]string, 0, len(m))
			for k := range m {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				printf(out, "%-20s %v\n", k, m[k])
			}
			return nil
		},
	})
	return c
}
