// File: core/card/schema.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Schema table mapping well-known registry keys to their expected tags.
// Keys absent from the table are accepted with any tag.

package card

import (
	"fmt"
	"sort"

	"github.com/momentics/guppi-status/api"
)

// Well-known keys.
const (
	KeyScanNum   = "SCANNUM"
	KeyObsMode   = "OBS_MODE"
	KeyTelescope = "TELESCOP"
	KeyObserver  = "OBSERVER"
	KeyFrontend  = "FRONTEND"
	KeyProject   = "PROJID"
	KeyFDPoln    = "FD_POLN"
	KeyTrackMode = "TRK_MODE"
	KeySrcName   = "SRC_NAME"
	KeyRAStr     = "RA_STR"
	KeyDecStr    = "DEC_STR"
	KeyRA        = "RA"
	KeyDec       = "DEC"
	KeyAz        = "AZ"
	KeyZa        = "ZA"
	KeyLST       = "LST"
	KeyObsFreq   = "OBSFREQ"
	KeyObsBW     = "OBSBW"
	KeyScanLen   = "SCANLEN"
	KeyBasename  = "BASENAME"
	KeyCalMode   = "CAL_MODE"
	KeyBackend   = "BACKEND"
	KeyPktFmt    = "PKTFMT"
	KeyPolType   = "POL_TYPE"
	KeyCalFreq   = "CAL_FREQ"
	KeyCalDcyc   = "CAL_DCYC"
	KeyCalPhs    = "CAL_PHS"
	KeyObsNChan  = "OBSNCHAN"
	KeyNPol      = "NPOL"
	KeyNBits     = "NBITS"
	KeyPFBOver   = "PFB_OVER"
	KeyNBitsADC  = "NBITSADC"
	KeyAccLen    = "ACC_LEN"
	KeyNRcvr     = "NRCVR"
	KeyOnlyI     = "ONLY_I"
	KeyDSTime    = "DS_TIME"
	KeyDSFreq    = "DS_FREQ"
	KeyTBin      = "TBIN"
	KeyChanBW    = "CHAN_BW"
	KeySttIMJD   = "STT_IMJD"
	KeySttSMJD   = "STT_SMJD"
	KeySttOffs   = "STT_OFFS"
	KeyCurBlock  = "CURBLOCK"
	KeyDiskStat  = "DISKSTAT"
	KeyNetStat   = "NETSTAT"
	KeyBlocSize  = "BLOCSIZE"
)

var schema = map[string]Kind{
	KeyScanNum: KindInt, KeyObsMode: KindText, KeyTelescope: KindText,
	KeyObserver: KindText, KeyFrontend: KindText, KeyProject: KindText,
	KeyFDPoln: KindText, KeyTrackMode: KindText, KeySrcName: KindText,
	KeyRAStr: KindText, KeyDecStr: KindText,
	KeyRA: KindFloat, KeyDec: KindFloat, KeyAz: KindFloat, KeyZa: KindFloat, KeyLST: KindFloat,
	KeyObsFreq: KindFloat, KeyObsBW: KindFloat, KeyScanLen: KindFloat,
	KeyBasename: KindText, KeyCalMode: KindText,
	KeyBackend: KindText, KeyPktFmt: KindText, KeyPolType: KindText,
	KeyCalFreq: KindFloat, KeyCalDcyc: KindFloat, KeyCalPhs: KindFloat,
	KeyObsNChan: KindInt, KeyNPol: KindInt, KeyNBits: KindInt, KeyPFBOver: KindInt,
	KeyNBitsADC: KindInt, KeyAccLen: KindInt, KeyNRcvr: KindInt,
	KeyOnlyI: KindInt, KeyDSTime: KindInt, KeyDSFreq: KindInt,
	KeyTBin: KindFloat, KeyChanBW: KindFloat,
	KeySttIMJD: KindInt, KeySttSMJD: KindInt, KeySttOffs: KindFloat,
	KeyCurBlock: KindInt, KeyDiskStat: KindText, KeyNetStat: KindText, KeyBlocSize: KindInt,
	"OFFSET0": KindFloat, "OFFSET1": KindFloat, "OFFSET2": KindFloat, "OFFSET3": KindFloat,
	"SCALE0": KindFloat, "SCALE1": KindFloat, "SCALE2": KindFloat, "SCALE3": KindFloat,
}

// Lookup returns the expected tag for a known key.
func Lookup(key string) (Kind, bool) {
	k, ok := schema[key]
	return k, ok
}

// Check validates v against the schema entry for key, if any.
func Check(key string, v Value) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	want, ok := schema[key]
	if !ok || want == v.Kind() {
		return nil
	}
	return fmt.Errorf("%s expects %s, got %s: %w", key, want, v.Kind(), api.ErrTypeMismatch)
}

// Parse parses operator text for key using the schema tag when known.
func Parse(key, text string) (Value, error) {
	if kind, ok := schema[key]; ok {
		v, err := ParseAs(kind, text)
		if err != nil {
			return Value{}, fmt.Errorf("%s=%q as %s: %w", key, text, kind, api.ErrTypeMismatch)
		}
		return v, nil
	}
	return ParseValue(text), nil
}

// KnownKeys lists the schema keys in sorted order.
func KnownKeys() []string {
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
