// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package registry

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/derive"
	"github.com/momentics/guppi-status/feed"
)

func setupAndRead(t *testing.T, h *Handle, s Setup) Snapshot {
	t.Helper()
	_, err := h.Setup(context.Background(), s)
	require.NoError(t, err)
	snap, err := h.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func TestSetup_CalibrationScan(t *testing.T) {
	h := openTest(t)
	s := DefaultSetup()
	s.Cal = true
	s.ScanNumber = 7

	snap := setupAndRead(t, h, s)
	assert.Equal(t, "guppi_Fake_PSR_0007_cal", snap.Text("BASENAME", ""))
	assert.Equal(t, 120.0, snap.Float("SCANLEN", 0))
	assert.Equal(t, "ON", snap.Text("CAL_MODE", ""))
	assert.Equal(t, int64(7), snap.Int("SCANNUM", 0))
}

func TestSetup_ManualScan(t *testing.T) {
	h := openTest(t)
	s := DefaultSetup()
	s.ScanNumber = 3
	s.ScanLength = 3600.0

	snap := setupAndRead(t, h, s)
	assert.Equal(t, "guppi_Fake_PSR_0003", snap.Text("BASENAME", ""))
	assert.Equal(t, "OFF", snap.Text("CAL_MODE", ""))
	assert.Equal(t, 3600.0, snap.Float("SCANLEN", 0))
	assert.Equal(t, -800.0, snap.Float("OBSBW", 0))

	assert.Equal(t, "GB43m", snap.Text("TELESCOP", ""))
	assert.Equal(t, "GUPPI Crew", snap.Text("OBSERVER", ""))
	assert.Equal(t, "None", snap.Text("FRONTEND", ""))
	assert.Equal(t, "GUPPI tests", snap.Text("PROJID", ""))
	assert.Equal(t, "LIN", snap.Text("FD_POLN", ""))
	assert.Equal(t, "TRACK", snap.Text("TRK_MODE", ""))
	assert.Equal(t, "SEARCH", snap.Text("OBS_MODE", ""))
	assert.Equal(t, 1200.0, snap.Float("OBSFREQ", 0))

	assert.Equal(t, "GUPPI", snap.Text("BACKEND", ""))
	assert.Equal(t, "IQUV", snap.Text("POL_TYPE", ""))
	assert.Equal(t, int64(2048), snap.Int("OBSNCHAN", 0))
	assert.Equal(t, int64(16), snap.Int("ACC_LEN", 0))
	assert.Equal(t, 1.0, snap.Float("SCALE3", 0))
	assert.Equal(t, 0.0, snap.Float("OFFSET0", -1))

	assert.Equal(t, -0.390625, snap.Float("CHAN_BW", 0))
	assert.InDelta(t, 4.096e-5, snap.Float("TBIN", 0), 1e-15)

	assert.Equal(t, int64(testMJD), snap.Int("STT_IMJD", 0))
	assert.Equal(t, int64(0), snap.Int("STT_SMJD", -1))
	assert.Equal(t, 0.0, snap.Float("STT_OFFS", -1))

	ra, err := derive.ParseSexagesimal("12:34:56.7")
	require.NoError(t, err)
	assert.InDelta(t, ra*15, snap.Float("RA", 0), 1e-9)
	_, ok := snap.Get("AZ")
	assert.True(t, ok)
	za := snap.Float("ZA", -1)
	assert.True(t, za >= 0 && za <= 180, "za %v", za)
}

func TestSetup_SingleCommit(t *testing.T) {
	h := openTest(t)
	res, err := h.Setup(context.Background(), DefaultSetup())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), res.Generation)
}

func TestSetup_BandwidthConventionConfigurable(t *testing.T) {
	h := openTest(t, func(o *Options) { o.Backend.ManualSign = 1 })
	snap := setupAndRead(t, h, DefaultSetup())
	assert.Equal(t, 800.0, snap.Float("OBSBW", 0))
	assert.Equal(t, 0.390625, snap.Float("CHAN_BW", 0))
}

func gbtStatus() api.TelescopeStatus {
	return api.TelescopeStatus{
		SourceName:   "B1937+21",
		RAString:     "19:39:38.6",
		DecString:    "+21:34:59.1",
		FreqMHz:      1410.0,
		Observer:     "Ransom",
		Project:      "AGBT24A_001",
		Frontend:     "Rcvr1_2",
		Polarization: "LIN",
		TrackMode:    "TRACK",
		AzDeg:        123.4,
		ZaDeg:        45.6,
		HasAzZa:      true,
		LSTSeconds:   3600,
		HasLST:       true,
	}
}

func TestSetup_FeedMode(t *testing.T) {
	h := openTest(t, func(o *Options) { o.Feed = feed.StaticFeed{Status: gbtStatus()} })
	s := DefaultSetup()
	s.Mode = api.ModeFeed
	s.ScanNumber = 12

	snap := setupAndRead(t, h, s)
	assert.Equal(t, "GBT", snap.Text("TELESCOP", ""))
	assert.Equal(t, "B1937+21", snap.Text("SRC_NAME", ""))
	assert.Equal(t, "guppi_B1937+21_0012", snap.Text("BASENAME", ""))
	assert.Equal(t, 1410.0, snap.Float("OBSFREQ", 0))
	assert.Equal(t, 800.0, snap.Float("OBSBW", 0))
	assert.Equal(t, "Ransom", snap.Text("OBSERVER", ""))
	assert.Equal(t, "Rcvr1_2", snap.Text("FRONTEND", ""))
	assert.Equal(t, 123.4, snap.Float("AZ", 0))
	assert.Equal(t, 45.6, snap.Float("ZA", 0))
	assert.Equal(t, 3600.0, snap.Float("LST", 0))
	assert.Equal(t, 0.390625, snap.Float("CHAN_BW", 0))
}

func TestSetup_FeedUnavailableStagesNothing(t *testing.T) {
	h := openTest(t, func(o *Options) { o.Feed = feed.StaticFeed{Err: errors.New("gbtstatus down")} })
	_, err := h.Commit(context.Background(), NewBatch().SetText("SRC_NAME", "previous"))
	require.NoError(t, err)

	s := DefaultSetup()
	s.Mode = api.ModeFeed
	_, err = h.Setup(context.Background(), s)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)
	assert.Equal(t, api.ErrCodeFeedUnavailable, api.CodeOf(err))

	snap, err := h.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, "previous", snap.Text("SRC_NAME", ""))
}

func TestSetup_FeedWithoutFrequencyStagesNothing(t *testing.T) {
	for name, freq := range map[string]float64{
		"missing":  0,
		"negative": -1410,
		"nan":      math.NaN(),
		"inf":      math.Inf(1),
	} {
		t.Run(name, func(t *testing.T) {
			st := api.TelescopeStatus{SourceName: "B1937+21", RAString: "19:39:38.6", DecString: "+21:34:59.1", FreqMHz: freq}
			h := openTest(t, func(o *Options) { o.Feed = feed.StaticFeed{Status: st} })

			s := DefaultSetup()
			s.Mode = api.ModeFeed
			_, err := h.Setup(context.Background(), s)
			assert.ErrorIs(t, err, api.ErrFeedUnavailable)

			gen, err := h.Generation()
			require.NoError(t, err)
			assert.Zero(t, gen)
		})
	}
}

func TestSetup_FeedModeWithoutFeed(t *testing.T) {
	h := openTest(t)
	s := DefaultSetup()
	s.Mode = api.ModeFeed
	_, err := h.StageObservation(context.Background(), s)
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)
}

func TestSetup_SlowFeedTimesOut(t *testing.T) {
	slow := api.FeedFunc(func(ctx context.Context) (api.TelescopeStatus, error) {
		<-ctx.Done()
		return api.TelescopeStatus{}, ctx.Err()
	})
	h := openTest(t, func(o *Options) { o.Feed = feed.WithDeadline(slow, 20*time.Millisecond) })
	s := DefaultSetup()
	s.Mode = api.ModeFeed
	_, err := h.StageObservation(context.Background(), s)
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)
}

func TestSetup_ClockFailure(t *testing.T) {
	h := openTest(t, func(o *Options) {
		o.Clock = api.ClockFunc(func(context.Context) (float64, error) { return 0, errors.New("ntp") })
	})
	_, err := h.StageObservation(context.Background(), DefaultSetup())
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)
}

func TestSetup_Validation(t *testing.T) {
	cases := map[string]func(*Setup){
		"bad mode":     func(s *Setup) { s.Mode = api.StagingMode(9) },
		"neg scan":     func(s *Setup) { s.ScanNumber = -1 },
		"zero length":  func(s *Setup) { s.ScanLength = 0 },
		"empty source": func(s *Setup) { s.Source = "" },
		"zero freq":    func(s *Setup) { s.FreqMHz = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			s := DefaultSetup()
			mutate(&s)
			assert.ErrorIs(t, s.Validate(), api.ErrInvalidArgument)
		})
	}

	s := DefaultSetup()
	s.Cal, s.ScanLength = true, 0
	assert.NoError(t, s.Validate())
}

func TestSetup_BadPointing(t *testing.T) {
	h := openTest(t)
	s := DefaultSetup()
	s.RA = "25:00:00"
	_, err := h.StageObservation(context.Background(), s)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestBasename(t *testing.T) {
	assert.Equal(t, "guppi_X_0001", Basename("X", 1, false))
	assert.Equal(t, "guppi_X_0042_cal", Basename("X", 42, true))
}

func TestStageObservation_DryRunLeavesRegistryUntouched(t *testing.T) {
	h := openTest(t)
	b, err := h.StageObservation(context.Background(), DefaultSetup())
	require.NoError(t, err)
	assert.Greater(t, b.Len(), 40)

	gen, err := h.Generation()
	require.NoError(t, err)
	assert.Zero(t, gen)
}
