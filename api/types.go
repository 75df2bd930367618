// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

import "time"

// StagingMode selects where the primary observation values come from.
// It is chosen once per staging session.
type StagingMode int

const (
	ModeManual StagingMode = iota
	ModeFeed
)

func (m StagingMode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeFeed:
		return "feed"
	default:
		return "unknown"
	}
}

// TelescopeStatus is one reading of the telescope pointing/status feed.
// Zero-valued optional fields are left out of the staged batch.
type TelescopeStatus struct {
	SourceName   string
	RAString     string // hh:mm:ss.s
	DecString    string // +dd:mm:ss.s
	RADeg        float64
	DecDeg       float64
	FreqMHz      float64
	Observer     string
	Project      string
	Frontend     string
	Polarization string // "LIN" or "CIRC"
	TrackMode    string // "TRACK", "DRIFT", "UNKNOWN"
	AzDeg        float64
	ZaDeg        float64
	LSTSeconds   float64
	HasAzZa      bool
	HasLST       bool
	ReadAt       time.Time
}

// RegistryStats is a lightweight view of registry health for probes.
type RegistryStats struct {
	Path          string
	Generation    uint64
	Cards         int
	Capacity      int
	LockOwner     int
	LastCommitAt  time.Time
	Commits       uint64
	BusyRetries   uint64
	ReadRetries   uint64
	ReadTimeouts  uint64
	TextTruncates uint64
}
