// File: core/derive/cards.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Card-level wrappers used while staging a batch.

package derive

import (
	"fmt"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/card"
)

// Getter resolves a key against staged-then-committed state.
type Getter func(key string) (card.Value, bool)

// Inputs lists the keys whose change forces TBIN and CHAN_BW to be recomputed.
var Inputs = []string{card.KeyAccLen, card.KeyObsNChan, card.KeyObsBW}

// TimingCards recomputes TBIN and CHAN_BW from ACC_LEN, OBSNCHAN and OBSBW.
// It returns no cards when any input is missing.
func TimingCards(get Getter) ([]card.Card, error) {
	accV, ok1 := get(card.KeyAccLen)
	nchV, ok2 := get(card.KeyObsNChan)
	bwV, ok3 := get(card.KeyObsBW)
	if !ok1 || !ok2 || !ok3 {
		return nil, nil
	}
	acc, okA := accV.AsInt()
	nch, okN := nchV.AsInt()
	bw, okB := bwV.AsFloat()
	if !okA || !okN || !okB {
		return nil, fmt.Errorf("timing inputs %v/%v/%v: %w", accV.Kind(), nchV.Kind(), bwV.Kind(), api.ErrTypeMismatch)
	}
	tbin, err := SampleTime(acc, nch, bw)
	if err != nil {
		return nil, err
	}
	chbw, err := ChannelBandwidth(bw, nch)
	if err != nil {
		return nil, err
	}
	return []card.Card{
		card.New(card.KeyTBin, card.Float(tbin)),
		card.New(card.KeyChanBW, card.Float(chbw)),
	}, nil
}

// StartCards splits mjd into STT_IMJD, STT_SMJD and STT_OFFS.
func StartCards(mjd float64) []card.Card {
	st := SplitMJD(mjd)
	return []card.Card{
		card.New(card.KeySttIMJD, card.Int(st.Day)),
		card.New(card.KeySttSMJD, card.Int(st.Second)),
		card.New(card.KeySttOffs, card.Float(st.Offset)),
	}
}

// PointingCards derives RA, DEC (degrees), AZ, ZA and LST from the
// sexagesimal RA_STR/DEC_STR at mjd.
func PointingCards(raStr, decStr string, mjd float64, site Site) ([]card.Card, error) {
	raH, err := ParseSexagesimal(raStr)
	if err != nil {
		return nil, fmt.Errorf("RA_STR: %w", err)
	}
	decD, err := ParseSexagesimal(decStr)
	if err != nil {
		return nil, fmt.Errorf("DEC_STR: %w", err)
	}
	if raH >= 24 || decD < -90 || decD > 90 {
		return nil, fmt.Errorf("pointing %s %s out of range: %w", raStr, decStr, api.ErrInvalidArgument)
	}
	az, za := AzZa(raH*15, decD, mjd, site)
	return []card.Card{
		card.New(card.KeyRA, card.Float(raH*15)),
		card.New(card.KeyDec, card.Float(decD)),
		card.New(card.KeyAz, card.Float(az)),
		card.New(card.KeyZa, card.Float(za)),
		card.New(card.KeyLST, card.Float(LocalSiderealHours(mjd, site)*3600)),
	}, nil
}
