// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package feed

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/momentics/guppi-status/api"
)

func TestSystemClock(t *testing.T) {
	c := SystemClock{Source: func() time.Time { return time.Unix(86400, 0) }}
	mjd, err := c.Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40588.0, mjd)

	_, err = SystemClock{Source: func() time.Time { return time.Time{} }}.Now(context.Background())
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = SystemClock{}.Now(ctx)
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)
}

func TestStaticFeed(t *testing.T) {
	st, err := StaticFeed{Status: api.TelescopeStatus{SourceName: "B0329+54"}}.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B0329+54", st.SourceName)
	assert.False(t, st.ReadAt.IsZero())

	_, err = StaticFeed{Err: errors.New("offline")}.Read(context.Background())
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)
	assert.Equal(t, api.ErrCodeFeedUnavailable, api.CodeOf(err))
}

func TestWithDeadline_SlowFeed(t *testing.T) {
	slow := api.FeedFunc(func(ctx context.Context) (api.TelescopeStatus, error) {
		select {
		case <-time.After(time.Second):
			return api.TelescopeStatus{SourceName: "late"}, nil
		case <-ctx.Done():
			return api.TelescopeStatus{}, ctx.Err()
		}
	})
	start := time.Now()
	_, err := WithDeadline(slow, 20*time.Millisecond).Read(context.Background())
	require.ErrorIs(t, err, api.ErrFeedUnavailable)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	fast := StaticFeed{Status: api.TelescopeStatus{SourceName: "now"}}
	st, err := WithDeadline(fast, time.Second).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "now", st.SourceName)
}

func TestClockWithDeadline(t *testing.T) {
	stuck := api.ClockFunc(func(ctx context.Context) (float64, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	_, err := ClockWithDeadline(stuck, 10*time.Millisecond).Now(context.Background())
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)

	mjd, err := ClockWithDeadline(FixedClock(60000.5), time.Second).Now(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 60000.5, mjd)
}

func TestCachedFeed(t *testing.T) {
	var calls atomic.Int32
	fail := atomic.Bool{}
	next := api.FeedFunc(func(ctx context.Context) (api.TelescopeStatus, error) {
		calls.Add(1)
		if fail.Load() {
			return api.TelescopeStatus{}, errors.New("db down")
		}
		return api.TelescopeStatus{SourceName: "J1713+0747"}, nil
	})
	c := NewCachedFeed(next, time.Minute, zaptest.NewLogger(t))

	for i := 0; i < 3; i++ {
		st, err := c.Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "J1713+0747", st.SourceName)
	}
	assert.Equal(t, int32(1), calls.Load())

	c.Invalidate()
	fail.Store(true)
	_, err := c.Read(context.Background())
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)
	_, err = c.Read(context.Background())
	assert.ErrorIs(t, err, api.ErrFeedUnavailable, "failures are not cached")
	assert.Equal(t, int32(3), calls.Load())
}

const statusSchema = `
CREATE TABLE status (
	source TEXT NOT NULL,
	j2000_ra TEXT NOT NULL,
	j2000_dec TEXT NOT NULL,
	freq REAL NOT NULL,
	observer TEXT,
	data_dir TEXT,
	receiver TEXT,
	rcvr_pol TEXT,
	ant_motion TEXT,
	az_actual REAL,
	el_actual REAL,
	lst TEXT
);`

func statusDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gbtstatus.db")
	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(statusSchema)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO status VALUES
		('B1937+21', '19:39:38.56', '+21:34:59.1', 1410.0, 'Jane Doe', 'AGBT09A_001',
		 'Rcvr1_2', 'Linear', 'Tracking', 231.5, 62.25, '18:05:00')`)
	require.NoError(t, err)
	return path
}

func TestSQLFeed_Read(t *testing.T) {
	f, err := OpenSQLFeed(statusDB(t))
	require.NoError(t, err)
	defer f.Close()

	st, err := f.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B1937+21", st.SourceName)
	assert.Equal(t, "19:39:38.6", st.RAString)
	assert.Equal(t, "+21:34:59.1", st.DecString)
	assert.Equal(t, 1410.0, st.FreqMHz)
	assert.Equal(t, "LIN", st.Polarization)
	assert.Equal(t, "TRACK", st.TrackMode)
	assert.Equal(t, "AGBT09A_001", st.Project)
	assert.True(t, st.HasAzZa)
	assert.InDelta(t, 27.75, st.ZaDeg, 1e-9)
	assert.True(t, st.HasLST)
	assert.InDelta(t, 18.0*3600+5*60, st.LSTSeconds, 1e-9)
}

func TestSQLFeed_MissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE unrelated (x INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	f, err := OpenSQLFeed(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.Read(context.Background())
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)
}

const statusYAML = `
source: J0437-4715
j2000_ra: "04:37:15.9"
j2000_dec: "-47:15:09.1"
freq: 820.0
observer: GUPPI Crew
receiver: Rcvr_800
rcvr_pol: Circular
ant_motion: Stopped
`

func writeAtomic(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, path))
}

func TestFileFeed_LoadAndWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telescope.yaml")
	writeAtomic(t, path, statusYAML)

	f, err := NewFileFeed(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer f.Close()

	st, err := f.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "J0437-4715", st.SourceName)
	assert.Equal(t, "CIRC", st.Polarization)
	assert.Equal(t, "DRIFT", st.TrackMode)
	assert.False(t, st.HasAzZa)

	require.NoError(t, f.Watch())
	writeAtomic(t, path, statusYAML+"\nlst: \"01:00:00\"\n")
	require.Eventually(t, func() bool { return f.Reloads() >= 2 }, 5*time.Second, 10*time.Millisecond)
	st, err = f.Read(context.Background())
	require.NoError(t, err)
	assert.True(t, st.HasLST)

	writeAtomic(t, path, "source: [broken")
	require.Eventually(t, func() bool {
		_, err := f.Read(context.Background())
		return errors.Is(err, api.ErrFeedUnavailable)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestFileFeed_Missing(t *testing.T) {
	_, err := NewFileFeed(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)
}

func TestNormalize_RequiresSource(t *testing.T) {
	_, err := rawStatus{RA: "00:00:00", Dec: "+00:00:00", FreqMHz: 1400}.normalize(time.Now())
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}
