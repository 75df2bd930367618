// File: core/card/codec.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fixed-width binary encoding for values and cards.

package card

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/momentics/guppi-status/api"
)

const (
	// KeyWidth is the maximum key length in bytes.
	KeyWidth = 16
	// PayloadWidth is the payload field width; also the text width.
	PayloadWidth = 72
	// CardSize is the on-wire size of one card.
	CardSize = 96

	offTag     = KeyWidth
	offTextLen = KeyWidth + 1
	offPayload = 24
)

// ByteOrder is the numeric byte order shared by all attached processes.
var ByteOrder = binary.LittleEndian

// Payload is an encoded value.
type Payload struct {
	Tag     Kind
	TextLen uint8
	Data    [PayloadWidth]byte
}

// TruncateText cuts s to PayloadWidth bytes. The cut moves back at most
// utf8.UTFMax-1 bytes, and only to avoid splitting a valid multi-byte
// rune; invalid UTF-8 is cut at the field width.
func TruncateText(s string) (string, bool) {
	if len(s) <= PayloadWidth {
		return s, false
	}
	n := PayloadWidth
	for k := 1; k < utf8.UTFMax && !utf8.RuneStart(s[n]); k++ {
		i := n - k
		if utf8.RuneStart(s[i]) {
			if r, size := utf8.DecodeRuneInString(s[i:]); r != utf8.RuneError && size > k {
				n = i
			}
			break
		}
	}
	return s[:n], true
}

// EncodeValue packs v into a fixed-width payload. The boolean result
// reports text truncation; the payload is valid either way.
func EncodeValue(v Value) (Payload, bool) {
	var p Payload
	p.Tag = v.kind
	truncated := false
	switch v.kind {
	case KindInt:
		ByteOrder.PutUint64(p.Data[:8], uint64(v.i))
	case KindFloat:
		ByteOrder.PutUint64(p.Data[:8], math.Float64bits(v.f))
	case KindFlag:
		if v.b {
			p.Data[0] = 1
		}
	case KindText:
		var s string
		s, truncated = TruncateText(v.s)
		p.TextLen = uint8(copy(p.Data[:], s))
	}
	return p, truncated
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(tag Kind, textLen uint8, data []byte) (Value, error) {
	if len(data) < PayloadWidth {
		return Value{}, fmt.Errorf("payload of %d bytes: %w", len(data), api.ErrInvalidArgument)
	}
	switch tag {
	case KindInt:
		return Int(int64(ByteOrder.Uint64(data[:8]))), nil
	case KindFloat:
		return Float(math.Float64frombits(ByteOrder.Uint64(data[:8]))), nil
	case KindFlag:
		return Flag(data[0] != 0), nil
	case KindText:
		n := int(textLen)
		if n > PayloadWidth {
			n = PayloadWidth
		}
		return Text(string(data[:n])), nil
	}
	return Value{}, fmt.Errorf("unknown tag %d: %w", tag, api.ErrInvalidArgument)
}
