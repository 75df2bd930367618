// File: cmd/put.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/card"
	"github.com/momentics/guppi-status/registry"
)

func newPutCmd(a *app) *cobra.Command {
	var deletes []string
	c := &cobra.Command{
		Use:   "put KEY=VALUE [KEY=VALUE...]",
		Short: "Commit individual cards in one batch",
		Long: `Set or delete individual cards. All assignments are committed together.
Known keys are parsed with their schema type; unknown keys are inferred
(integer, float, T/F flag, otherwise text).

Examples:
  guppictl put SRC_NAME=B0329+54 OBSFREQ=1410
  guppictl put -D CURBLOCK`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := parseAssignments(args, deletes)
			if err != nil {
				return err
			}
			h, err := a.openHandle(cmd.Context(), false)
			if err != nil {
				return err
			}
			res, err := h.Commit(cmd.Context(), b)
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "committed generation %d (%d cards)\n", res.Generation, res.Cards)
			return nil
		},
	}
	c.Flags().StringArrayVarP(&deletes, "delete", "D", nil, "remove KEY (repeatable)")
	return c
}

func parseAssignments(args, deletes []string) (*registry.Batch, error) {
	if len(args) == 0 && len(deletes) == 0 {
		return nil, fmt.Errorf("nothing to put: %w", api.ErrInvalidArgument)
	}
	b := registry.NewBatch()
	for _, arg := range args {
		key, text, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%q is not KEY=VALUE: %w", arg, api.ErrInvalidArgument)
		}
		key = strings.TrimSpace(key)
		v, err := card.Parse(key, text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		b.Set(key, v)
	}
	for _, key := range deletes {
		b.Delete(strings.TrimSpace(key))
	}
	return b, b.Err()
}
