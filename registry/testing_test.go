// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/guppi-status/feed"
)

// testMJD is 2024-01-01T00:00:00Z.
const testMJD = 60310.0

func openTest(t *testing.T, mutate ...func(*Options)) *Handle {
	t.Helper()
	opts := DefaultOptions()
	opts.Path = filepath.Join(t.TempDir(), "guppi_status")
	opts.Capacity = 128
	opts.ReadTimeout = 200 * time.Millisecond
	opts.CommitTimeout = time.Second
	opts.Clock = feed.FixedClock(testMJD)
	opts.Logger = zaptest.NewLogger(t)
	for _, m := range mutate {
		m(&opts)
	}
	h, err := Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}
