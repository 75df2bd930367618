// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/registry"
)

type env struct {
	dir string
	cfg string
	shm string
}

func newEnv(t *testing.T, extraConfig string) env {
	t.Helper()
	dir := t.TempDir()
	e := env{
		dir: dir,
		cfg: filepath.Join(dir, "config.yaml"),
		shm: filepath.Join(dir, "guppi_status"),
	}
	body := "log:\n  level: error\nwatch:\n  interval: 10ms\n" + extraConfig
	require.NoError(t, os.WriteFile(e.cfg, []byte(body), 0o600))
	return e
}

// syncBuffer is a bytes.Buffer safe for a concurrent reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (e env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out syncBuffer
	err := e.runTo(&out, args...)
	return out.String(), err
}

func (e env) runTo(out *syncBuffer, args ...string) error {
	root := NewRootCmd()
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(append([]string{"--config", e.cfg, "--shm", e.shm}, args...))
	return root.Execute()
}

func TestSetShowGet(t *testing.T) {
	e := newEnv(t, "")
	out, err := e.run(t, "set", "-n", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "committed generation 1")

	out, err = e.run(t, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "BASENAME= 'guppi_Fake_PSR_0003'")
	assert.Contains(t, out, "CAL_MODE= 'OFF")
	assert.Contains(t, out, "# generation 1")

	out, err = e.run(t, "get", "OBSBW")
	require.NoError(t, err)
	assert.Equal(t, "-800.0\n", out)

	out, err = e.run(t, "get", "SCANNUM", "SCANLEN")
	require.NoError(t, err)
	assert.Equal(t, "SCANNUM=3\nSCANLEN=3600.0\n", out)
}

func TestSetCal(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.run(t, "set", "--cal", "-n", "7", "-s", "Fake_PSR")
	require.NoError(t, err)
	out, err := e.run(t, "get", "BASENAME", "SCANLEN", "CAL_MODE")
	require.NoError(t, err)
	assert.Equal(t, "BASENAME=guppi_Fake_PSR_0007_cal\nSCANLEN=120.0\nCAL_MODE=ON\n", out)
}

func TestSetDryRunCommitsNothing(t *testing.T) {
	e := newEnv(t, "")
	out, err := e.run(t, "set", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "SRC_NAME= 'Fake_PSR'")
	assert.Contains(t, out, "nothing committed")

	_, err = e.run(t, "get", "SRC_NAME")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestSetFeedModeWithoutFeed(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.run(t, "set", "--gbt")
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrFeedUnavailable)
	assert.Equal(t, 5, exitCode(err))
}

func TestSetFeedModeFromFile(t *testing.T) {
	dir := t.TempDir()
	status := filepath.Join(dir, "gbtstatus.yaml")
	require.NoError(t, os.WriteFile(status, []byte(`
source: B1937+21
j2000_ra: "19:39:38.6"
j2000_dec: "+21:34:59.1"
freq: 1410.0
observer: Ransom
receiver: Rcvr1_2
rcvr_pol: Linear
ant_motion: Tracking
`), 0o600))
	e := newEnv(t, "feed:\n  kind: file\n  path: "+status+"\n")

	_, err := e.run(t, "set", "--gbt", "-n", "12")
	require.NoError(t, err)
	out, err := e.run(t, "get", "TELESCOP", "SRC_NAME", "BASENAME", "OBSBW")
	require.NoError(t, err)
	assert.Equal(t, "TELESCOP=GBT\nSRC_NAME=B1937+21\nBASENAME=guppi_B1937+21_0012\nOBSBW=800.0\n", out)
}

func TestPut(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.run(t, "put", "SRC_NAME=B0329+54", "OBSFREQ=1410", "CURBLOCK=4", "MYKEY=T")
	require.NoError(t, err)

	out, err := e.run(t, "get", "SRC_NAME", "OBSFREQ", "MYKEY")
	require.NoError(t, err)
	assert.Equal(t, "SRC_NAME=B0329+54\nOBSFREQ=1410.0\nMYKEY=T\n", out)

	_, err = e.run(t, "put", "-D", "CURBLOCK")
	require.NoError(t, err)
	_, err = e.run(t, "get", "CURBLOCK")
	assert.Error(t, err)

	_, err = e.run(t, "put", "OBSNCHAN=lots")
	assert.ErrorIs(t, err, api.ErrTypeMismatch)
	_, err = e.run(t, "put", "novalue")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	_, err = e.run(t, "put")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestPut_KeysAreCaseSensitive(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.run(t, "put", "SRC_NAME=upper", "src_name=lower")
	require.NoError(t, err)

	out, err := e.run(t, "get", "SRC_NAME", "src_name")
	require.NoError(t, err)
	assert.Equal(t, "SRC_NAME=upper\nsrc_name=lower\n", out)

	_, err = e.run(t, "put", "-D", "src_name")
	require.NoError(t, err)
	_, err = e.run(t, "get", "src_name")
	assert.Error(t, err)
	out, err = e.run(t, "get", "SRC_NAME")
	require.NoError(t, err)
	assert.Equal(t, "upper\n", out)
}

func TestWatchPrintsChanges(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.run(t, "put", "SRC_NAME=A", "CURBLOCK=1")
	require.NoError(t, err)

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- e.runTo(&out, "watch", "--count", "1") }()
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "# watching generation 1") },
		2*time.Second, 5*time.Millisecond)

	opts := registry.DefaultOptions()
	opts.Path = e.shm
	h, err := registry.Open(context.Background(), opts)
	require.NoError(t, err)
	defer h.Close()
	_, err = h.Commit(context.Background(), registry.NewBatch().SetText("SRC_NAME", "B").Delete("CURBLOCK").SetInt("SCANNUM", 2))
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not exit")
	}
	s := out.String()
	assert.Contains(t, s, "# generation 2")
	assert.Contains(t, s, "~ SRC_NAME A -> B")
	assert.Contains(t, s, "+ SCANNUM  2")
	assert.Contains(t, s, "- CURBLOCK 1")
}

func TestStatusUnlockUnlink(t *testing.T) {
	e := newEnv(t, "")
	_, err := e.run(t, "put", "SCANNUM=1")
	require.NoError(t, err)

	out, err := e.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "generation  1")
	assert.Contains(t, out, "cards       1")
	assert.Contains(t, out, "committed   ")
	assert.Contains(t, out, "lock        free")
	assert.Contains(t, out, "debug.registry.path")

	out, err = e.run(t, "unlock")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to do")

	_, err = e.run(t, "unlink")
	require.NoError(t, err)
	_, err = os.Stat(e.shm)
	assert.True(t, os.IsNotExist(err))
}

func TestConfigInitAndShow(t *testing.T) {
	e := newEnv(t, "")
	path := filepath.Join(e.dir, "fresh", "config.yaml")
	out, err := e.run(t, "config", "init", path)
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
	_, err = os.Stat(path)
	require.NoError(t, err)

	out, err = e.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "shm.path")
	assert.Contains(t, out, e.shm)
	assert.Contains(t, out, "watch.interval       10ms")
}

func TestMissingExplicitConfigFails(t *testing.T) {
	e := newEnv(t, "")
	e.cfg = filepath.Join(e.dir, "absent.yaml")
	_, err := e.run(t, "show")
	assert.Error(t, err)
}

func TestTraceFlagEmitsSpans(t *testing.T) {
	e := newEnv(t, "")
	out, err := e.run(t, "--trace", "put", "SCANNUM=1")
	require.NoError(t, err)
	assert.Contains(t, out, "registry.commit")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 3, exitCode(api.ErrWriterBusy))
	assert.Equal(t, 4, exitCode(api.ErrReadTimeout))
	assert.Equal(t, 1, exitCode(api.ErrAttach))
}
