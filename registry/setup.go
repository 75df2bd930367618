// File: registry/setup.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Observation setup: stages every card for one scan in a single batch.

package registry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/card"
	"github.com/momentics/guppi-status/core/derive"
)

// Setup is one observation request from the control surface.
type Setup struct {
	Mode       api.StagingMode
	Source     string
	RA         string // hh:mm:ss.s
	Dec        string // [+-]dd:mm:ss.s
	FreqMHz    float64
	ScanNumber int
	ScanLength float64 // seconds
	Cal        bool
}

// DefaultSetup mirrors the control surface defaults.
func DefaultSetup() Setup {
	return Setup{
		Mode:       api.ModeManual,
		Source:     "Fake_PSR",
		RA:         "12:34:56.7",
		Dec:        "+12:34:56.7",
		FreqMHz:    1200.0,
		ScanNumber: 1,
		ScanLength: 3600.0,
	}
}

// Validate checks caller-supplied fields. Feed mode ignores the
// pointing and frequency fields.
func (s Setup) Validate() error {
	if s.Mode != api.ModeManual && s.Mode != api.ModeFeed {
		return fmt.Errorf("staging mode %d: %w", s.Mode, api.ErrInvalidArgument)
	}
	if s.ScanNumber < 0 || s.ScanNumber > 9999 {
		return fmt.Errorf("scan number %d out of range: %w", s.ScanNumber, api.ErrInvalidArgument)
	}
	if !s.Cal && (s.ScanLength <= 0 || math.IsNaN(s.ScanLength) || math.IsInf(s.ScanLength, 0)) {
		return fmt.Errorf("scan length %v: %w", s.ScanLength, api.ErrInvalidArgument)
	}
	if s.Mode == api.ModeFeed {
		return nil
	}
	if strings.TrimSpace(s.Source) == "" || strings.ContainsAny(s.Source, " /") {
		return fmt.Errorf("source name %q: %w", s.Source, api.ErrInvalidArgument)
	}
	if !(s.FreqMHz > 0) || math.IsInf(s.FreqMHz, 0) {
		return fmt.Errorf("frequency %v MHz: %w", s.FreqMHz, api.ErrInvalidArgument)
	}
	return nil
}

// Backend is the fixed backend profile plus the site conventions used
// while staging. Values load from the "backend" config section.
type Backend struct {
	Name     string    `mapstructure:"name" yaml:"name"`
	PktFmt   string    `mapstructure:"pktfmt" yaml:"pktfmt"`
	PolType  string    `mapstructure:"pol_type" yaml:"pol_type"`
	ObsMode  string    `mapstructure:"obs_mode" yaml:"obs_mode"`
	CalFreq  float64   `mapstructure:"cal_freq" yaml:"cal_freq"`
	CalDcyc  float64   `mapstructure:"cal_dcyc" yaml:"cal_dcyc"`
	CalPhs   float64   `mapstructure:"cal_phs" yaml:"cal_phs"`
	NChan    int64     `mapstructure:"obsnchan" yaml:"obsnchan"`
	NPol     int64     `mapstructure:"npol" yaml:"npol"`
	NBits    int64     `mapstructure:"nbits" yaml:"nbits"`
	PFBOver  int64     `mapstructure:"pfb_over" yaml:"pfb_over"`
	NBitsADC int64     `mapstructure:"nbitsadc" yaml:"nbitsadc"`
	AccLen   int64     `mapstructure:"acc_len" yaml:"acc_len"`
	NRcvr    int64     `mapstructure:"nrcvr" yaml:"nrcvr"`
	OnlyI    int64     `mapstructure:"only_i" yaml:"only_i"`
	DSTime   int64     `mapstructure:"ds_time" yaml:"ds_time"`
	DSFreq   int64     `mapstructure:"ds_freq" yaml:"ds_freq"`
	Offsets  []float64 `mapstructure:"offsets" yaml:"offsets"`
	Scales   []float64 `mapstructure:"scales" yaml:"scales"`

	// Bandwidth sign convention. Manual scans are written spectrally
	// inverted (negative), feed-driven scans positive.
	NominalBW  float64 `mapstructure:"nominal_bw" yaml:"nominal_bw"`
	ManualSign float64 `mapstructure:"manual_bw_sign" yaml:"manual_bw_sign"`
	FeedSign   float64 `mapstructure:"feed_bw_sign" yaml:"feed_bw_sign"`

	CalScanLength float64 `mapstructure:"cal_scan_length" yaml:"cal_scan_length"`

	Manual        ManualSite `mapstructure:"manual" yaml:"manual"`
	FeedTelescope string     `mapstructure:"feed_telescope" yaml:"feed_telescope"`
}

// ManualSite holds the placeholder identity written in manual mode.
type ManualSite struct {
	Telescope string `mapstructure:"telescope" yaml:"telescope"`
	Observer  string `mapstructure:"observer" yaml:"observer"`
	Frontend  string `mapstructure:"frontend" yaml:"frontend"`
	Project   string `mapstructure:"project" yaml:"project"`
	Poln      string `mapstructure:"fd_poln" yaml:"fd_poln"`
	TrackMode string `mapstructure:"trk_mode" yaml:"trk_mode"`
}

// DefaultBackend is the GUPPI search-mode profile.
func DefaultBackend() Backend {
	return Backend{
		Name:          "GUPPI",
		PktFmt:        "GUPPI",
		PolType:       "IQUV",
		ObsMode:       "SEARCH",
		CalFreq:       25.0,
		CalDcyc:       0.5,
		CalPhs:        0.0,
		NChan:         2048,
		NPol:          4,
		NBits:         8,
		PFBOver:       4,
		NBitsADC:      8,
		AccLen:        16,
		NRcvr:         2,
		OnlyI:         0,
		DSTime:        1,
		DSFreq:        1,
		Offsets:       []float64{0, 0, 0, 0},
		Scales:        []float64{1, 1, 1, 1},
		NominalBW:     800.0,
		ManualSign:    -1,
		FeedSign:      1,
		CalScanLength: 120.0,
		Manual: ManualSite{
			Telescope: "GB43m",
			Observer:  "GUPPI Crew",
			Frontend:  "None",
			Project:   "GUPPI tests",
			Poln:      "LIN",
			TrackMode: "TRACK",
		},
		FeedTelescope: "GBT",
	}
}

// Bandwidth returns the signed OBSBW for mode.
func (b Backend) Bandwidth(mode api.StagingMode) float64 {
	sign := b.ManualSign
	if mode == api.ModeFeed {
		sign = b.FeedSign
	}
	if sign < 0 {
		return -math.Abs(b.NominalBW)
	}
	return math.Abs(b.NominalBW)
}

// Basename is the data file prefix for a scan.
func Basename(source string, scan int, cal bool) string {
	if cal {
		return fmt.Sprintf("guppi_%s_%04d_cal", source, scan)
	}
	return fmt.Sprintf("guppi_%s_%04d", source, scan)
}

// StageObservation builds the complete batch for s. Nothing is staged when
// the feed or clock fail; those errors match api.ErrFeedUnavailable.
func (h *Handle) StageObservation(ctx context.Context, s Setup) (*Batch, error) {
	ctx, span := h.tracer.Start(ctx, "registry.stage", trace.WithAttributes(
		attribute.String("mode", s.Mode.String()),
		attribute.Int("scan", s.ScanNumber),
		attribute.Bool("cal", s.Cal),
	))
	defer span.End()

	b, err := h.stage(ctx, s)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage")
		return nil, err
	}
	span.SetAttributes(attribute.Int("staged", b.Len()))
	return b, nil
}

func (h *Handle) stage(ctx context.Context, s Setup) (*Batch, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	be := h.opts.Backend

	// External reads happen first so a failure leaves nothing staged.
	var st api.TelescopeStatus
	if s.Mode == api.ModeFeed {
		if h.opts.Feed == nil {
			return nil, api.Wrap(api.ErrCodeFeedUnavailable, "feed mode without a telescope feed", api.ErrFeedUnavailable)
		}
		var err error
		st, err = h.opts.Feed.Read(ctx)
		if err != nil {
			return nil, feedErr("telescope", err)
		}
		if strings.TrimSpace(st.SourceName) == "" || st.RAString == "" || st.DecString == "" {
			return nil, api.Wrap(api.ErrCodeFeedUnavailable, "telescope feed returned no pointing", api.ErrFeedUnavailable)
		}
		if !(st.FreqMHz > 0) || math.IsInf(st.FreqMHz, 0) {
			return nil, api.Wrap(api.ErrCodeFeedUnavailable, "telescope feed returned no frequency", api.ErrFeedUnavailable).
				WithContext("freq_mhz", st.FreqMHz)
		}
	}
	mjd, err := h.now(ctx)
	if err != nil {
		return nil, err
	}

	b := NewBatch()
	b.SetInt(card.KeyScanNum, int64(s.ScanNumber))
	b.SetText(card.KeyObsMode, be.ObsMode)

	source := s.Source
	ra, dec := s.RA, s.Dec
	if s.Mode == api.ModeFeed {
		source, ra, dec = st.SourceName, st.RAString, st.DecString
		b.SetText(card.KeyTelescope, be.FeedTelescope)
		setTextIf(b, card.KeyObserver, st.Observer)
		setTextIf(b, card.KeyProject, st.Project)
		setTextIf(b, card.KeyFrontend, st.Frontend)
		setTextIf(b, card.KeyFDPoln, st.Polarization)
		setTextIf(b, card.KeyTrackMode, st.TrackMode)
		b.SetText(card.KeySrcName, source)
		b.SetText(card.KeyRAStr, ra)
		b.SetText(card.KeyDecStr, dec)
		b.SetFloat(card.KeyObsFreq, st.FreqMHz)
	} else {
		b.SetText(card.KeyTelescope, be.Manual.Telescope)
		b.SetText(card.KeyObserver, be.Manual.Observer)
		b.SetText(card.KeyFrontend, be.Manual.Frontend)
		b.SetText(card.KeyProject, be.Manual.Project)
		b.SetText(card.KeyFDPoln, be.Manual.Poln)
		b.SetText(card.KeyTrackMode, be.Manual.TrackMode)
		b.SetText(card.KeySrcName, source)
		b.SetText(card.KeyRAStr, ra)
		b.SetText(card.KeyDecStr, dec)
		b.SetFloat(card.KeyObsFreq, s.FreqMHz)
	}
	b.SetFloat(card.KeyObsBW, be.Bandwidth(s.Mode))

	if s.Cal {
		b.SetFloat(card.KeyScanLen, be.CalScanLength)
		b.SetText(card.KeyCalMode, "ON")
	} else {
		b.SetFloat(card.KeyScanLen, s.ScanLength)
		b.SetText(card.KeyCalMode, "OFF")
	}
	b.SetText(card.KeyBasename, Basename(source, s.ScanNumber, s.Cal))

	stageBackend(b, be)

	derived, err := derive.TimingCards(b.Get)
	if err != nil {
		return nil, err
	}
	for _, c := range derived {
		b.Set(c.Key, c.Value)
	}
	for _, c := range derive.StartCards(mjd) {
		b.Set(c.Key, c.Value)
	}

	pointing, err := derive.PointingCards(ra, dec, mjd, h.opts.Site)
	if err != nil {
		return nil, err
	}
	for _, c := range pointing {
		b.Set(c.Key, c.Value)
	}
	if s.Mode == api.ModeFeed {
		if st.HasAzZa {
			b.SetFloat(card.KeyAz, st.AzDeg)
			b.SetFloat(card.KeyZa, st.ZaDeg)
		}
		if st.HasLST {
			b.SetFloat(card.KeyLST, st.LSTSeconds)
		}
	}

	if err := b.Err(); err != nil {
		return nil, err
	}
	h.log.Debug("staged observation",
		zap.Stringer("mode", s.Mode),
		zap.String("source", source),
		zap.Int("scan", s.ScanNumber),
		zap.Bool("cal", s.Cal),
		zap.Int("cards", b.Len()))
	return b, nil
}

func stageBackend(b *Batch, be Backend) {
	b.SetText(card.KeyBackend, be.Name)
	b.SetText(card.KeyPktFmt, be.PktFmt)
	b.SetText(card.KeyPolType, be.PolType)
	b.SetFloat(card.KeyCalFreq, be.CalFreq)
	b.SetFloat(card.KeyCalDcyc, be.CalDcyc)
	b.SetFloat(card.KeyCalPhs, be.CalPhs)
	b.SetInt(card.KeyObsNChan, be.NChan)
	b.SetInt(card.KeyNPol, be.NPol)
	b.SetInt(card.KeyNBits, be.NBits)
	b.SetInt(card.KeyPFBOver, be.PFBOver)
	b.SetInt(card.KeyNBitsADC, be.NBitsADC)
	b.SetInt(card.KeyAccLen, be.AccLen)
	b.SetInt(card.KeyNRcvr, be.NRcvr)
	b.SetInt(card.KeyOnlyI, be.OnlyI)
	b.SetInt(card.KeyDSTime, be.DSTime)
	b.SetInt(card.KeyDSFreq, be.DSFreq)
	for i, v := range be.Offsets {
		b.SetFloat(fmt.Sprintf("OFFSET%d", i), v)
	}
	for i, v := range be.Scales {
		b.SetFloat(fmt.Sprintf("SCALE%d", i), v)
	}
}

func setTextIf(b *Batch, key, v string) {
	if v != "" {
		b.SetText(key, v)
	}
}

func (h *Handle) now(ctx context.Context) (float64, error) {
	if h.opts.Clock == nil {
		return derive.MJDFromTime(timeNow()), nil
	}
	mjd, err := h.opts.Clock.Now(ctx)
	if err != nil {
		return 0, feedErr("clock", err)
	}
	return mjd, nil
}

func feedErr(source string, err error) error {
	if errors.Is(err, api.ErrFeedUnavailable) {
		return err
	}
	return api.Wrap(api.ErrCodeFeedUnavailable, source+" feed", errors.Join(api.ErrFeedUnavailable, err))
}

// Setup stages s and publishes it in one commit.
func (h *Handle) Setup(ctx context.Context, s Setup) (CommitResult, error) {
	b, err := h.StageObservation(ctx, s)
	if err != nil {
		return CommitResult{}, err
	}
	return h.Commit(ctx, b)
}
