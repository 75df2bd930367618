// File: cmd/show.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/card"
)

func newShowCmd(a *app) *cobra.Command {
	var sorted bool
	c := &cobra.Command{
		Use:   "show",
		Short: "Print the current snapshot as header lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openHandle(cmd.Context(), true)
			if err != nil {
				return err
			}
			snap, err := h.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			cards := snap.Cards()
			if sorted {
				sort.Slice(cards, func(i, j int) bool { return cards[i].Key < cards[j].Key })
			}
			out := cmd.OutOrStdout()
			for _, c := range cards {
				printf(out, "%s\n", c.HeaderLine())
			}
			printf(out, "# generation %d, %d cards", snap.Generation, snap.Len())
			if !snap.CommittedAt.IsZero() {
				printf(out, ", committed %s", snap.CommittedAt.UTC().Format("2006-01-02T15:04:05.000Z"))
			}
			printf(out, "\n")
			return nil
		},
	}
	c.Flags().BoolVar(&sorted, "sort", false, "sort cards by key")
	return c
}

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY [KEY...]",
		Short: "Print the values of one or more keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.openHandle(cmd.Context(), true)
			if err != nil {
				return err
			}
			snap, err := h.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, key := range args {
				v, ok := snap.Get(key)
				if !ok {
					return fmt.Errorf("%s is not set: %w", key, api.ErrInvalidArgument)
				}
				if len(args) == 1 {
					printf(out, "%s\n", v)
				} else {
					printf(out, "%s\n", card.New(key, v))
				}
			}
			return nil
		},
	}
}
