// File: core/derive/derive.go
// Package derive computes dependent registry values from primary inputs.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// All functions are pure and deterministic. They run while a batch is
// being staged so their outputs are committed together with their inputs.

package derive

import (
	"fmt"
	"math"
	"time"

	"github.com/momentics/guppi-status/api"
)

const (
	// SecondsPerDay is the length of an MJD day.
	SecondsPerDay = 86400.0
	// OffsetEpsilon is the smallest start-time remainder kept; anything
	// below it is stored as exactly zero.
	OffsetEpsilon = 2e-6
	// truncTolerance is added before truncating the second of day.
	truncTolerance = 1e-6
	// unixEpochMJD is the MJD of 1970-01-01T00:00:00Z.
	unixEpochMJD = 40587.0
)

// SampleTime returns |accLen * nchan / bwMHz * 1e-6| seconds. The
// bandwidth sign only encodes spectral inversion and is ignored.
func SampleTime(accLen, nchan int64, bwMHz float64) (float64, error) {
	if nchan == 0 {
		return 0, fmt.Errorf("sample time with zero channels: %w", api.ErrInvalidArgument)
	}
	if bwMHz == 0 || math.IsNaN(bwMHz) || math.IsInf(bwMHz, 0) {
		return 0, fmt.Errorf("sample time with bandwidth %v: %w", bwMHz, api.ErrInvalidArgument)
	}
	return math.Abs(float64(accLen) * float64(nchan) / bwMHz * 1e-6), nil
}

// ChannelBandwidth returns bwMHz / nchan, keeping the sign.
func ChannelBandwidth(bwMHz float64, nchan int64) (float64, error) {
	if nchan == 0 {
		return 0, fmt.Errorf("channel bandwidth with zero channels: %w", api.ErrInvalidArgument)
	}
	return bwMHz / float64(nchan), nil
}

// StartTime is an MJD split into integer day, integer second of day and
// fractional remainder in seconds.
type StartTime struct {
	Day    int64
	Second int64
	Offset float64
}

// MJD reassembles the fractional day.
func (s StartTime) MJD() float64 {
	return float64(s.Day) + (float64(s.Second)+s.Offset)/SecondsPerDay
}

// SplitMJD decomposes mjd. The second of day is truncated after adding
// 1 µs so floating error cannot push it one second low; a remainder below
// OffsetEpsilon (including the small negatives that tolerance produces)
// becomes exactly zero.
func SplitMJD(mjd float64) StartTime {
	day := math.Floor(mjd)
	frac := mjd - day
	sec := math.Floor(frac*SecondsPerDay + truncTolerance)
	offs := (mjd - day - sec/SecondsPerDay) * SecondsPerDay
	if offs < OffsetEpsilon {
		offs = 0
	}
	st := StartTime{Day: int64(day), Second: int64(sec), Offset: offs}
	if st.Second >= SecondsPerDay {
		st.Day++
		st.Second -= int64(SecondsPerDay)
	}
	return st
}

// MJDFromTime converts a wall-clock instant to a fractional MJD.
func MJDFromTime(t time.Time) float64 {
	sec := float64(t.Unix()) + float64(t.Nanosecond())/1e9
	return unixEpochMJD + sec/SecondsPerDay
}
