// File: feed/mapping.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Normalization of raw telescope status fields into registry conventions.

package feed

import (
	"fmt"
	"strings"
	"time"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/derive"
)

// rawStatus is the loosely typed record as the telescope control system
// publishes it.
type rawStatus struct {
	Source   string   `yaml:"source"`
	RA       string   `yaml:"j2000_ra"`
	Dec      string   `yaml:"j2000_dec"`
	FreqMHz  float64  `yaml:"freq"`
	Observer string   `yaml:"observer"`
	Project  string   `yaml:"data_dir"`
	Receiver string   `yaml:"receiver"`
	RcvrPol  string   `yaml:"rcvr_pol"`
	Motion   string   `yaml:"ant_motion"`
	AzActual *float64 `yaml:"az_actual"`
	ElActual *float64 `yaml:"el_actual"`
	LST      string   `yaml:"lst"`
}

func trackMode(motion string) string {
	switch strings.ToLower(strings.TrimSpace(motion)) {
	case "tracking", "guiding":
		return "TRACK"
	case "stopped":
		return "DRIFT"
	default:
		return "UNKNOWN"
	}
}

func polarization(rcvrPol string) string {
	if strings.Contains(strings.ToUpper(rcvrPol), "LIN") {
		return "LIN"
	}
	return "CIRC"
}

// normalize validates and converts r. Source, coordinates and frequency
// are required.
func (r rawStatus) normalize(readAt time.Time) (api.TelescopeStatus, error) {
	if strings.TrimSpace(r.Source) == "" {
		return api.TelescopeStatus{}, fmt.Errorf("missing source: %w", api.ErrInvalidArgument)
	}
	if r.FreqMHz <= 0 {
		return api.TelescopeStatus{}, fmt.Errorf("frequency %v: %w", r.FreqMHz, api.ErrInvalidArgument)
	}
	raH, err := derive.ParseSexagesimal(r.RA)
	if err != nil {
		return api.TelescopeStatus{}, fmt.Errorf("j2000_ra: %w", err)
	}
	decD, err := derive.ParseSexagesimal(r.Dec)
	if err != nil {
		return api.TelescopeStatus{}, fmt.Errorf("j2000_dec: %w", err)
	}
	st := api.TelescopeStatus{
		SourceName:   strings.TrimSpace(r.Source),
		RAString:     derive.FormatSexagesimal(raH, false),
		DecString:    derive.FormatSexagesimal(decD, true),
		RADeg:        raH * 15,
		DecDeg:       decD,
		FreqMHz:      r.FreqMHz,
		Observer:     r.Observer,
		Project:      r.Project,
		Frontend:     r.Receiver,
		Polarization: polarization(r.RcvrPol),
		TrackMode:    trackMode(r.Motion),
		ReadAt:       readAt,
	}
	if r.AzActual != nil && r.ElActual != nil {
		st.AzDeg = *r.AzActual
		st.ZaDeg = 90 - *r.ElActual
		st.HasAzZa = true
	}
	if r.LST != "" {
		h, err := derive.ParseSexagesimal(r.LST)
		if err != nil {
			return api.TelescopeStatus{}, fmt.Errorf("lst: %w", err)
		}
		st.LSTSeconds = h * 3600
		st.HasLST = true
	}
	return st, nil
}
