// File: core/card/card.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Card is one key/value record of the registry.

package card

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/momentics/guppi-status/api"
)

// HeaderLineWidth is the column width of a rendered header line.
const HeaderLineWidth = 80

// Card is a (key, value) pair.
type Card struct {
	Key   string
	Value Value
}

// New builds a card.
func New(key string, v Value) Card { return Card{Key: key, Value: v} }

// ValidateKey checks key length and charset.
func ValidateKey(key string) error {
	if key == "" || len(key) > KeyWidth {
		return fmt.Errorf("key %q must be 1..%d bytes: %w", key, KeyWidth, api.ErrInvalidArgument)
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c <= ' ' || c > '~' || c == '=' {
			return fmt.Errorf("key %q has invalid byte %q: %w", key, c, api.ErrInvalidArgument)
		}
	}
	return nil
}

// MarshalTo writes the card into dst[:CardSize]. Truncated text is
// reported, not treated as failure.
func (c Card) MarshalTo(dst []byte) (truncated bool, err error) {
	if len(dst) < CardSize {
		return false, fmt.Errorf("card buffer of %d bytes: %w", len(dst), api.ErrInvalidArgument)
	}
	if err := ValidateKey(c.Key); err != nil {
		return false, err
	}
	if !c.Value.IsValid() {
		return false, fmt.Errorf("key %s has no value: %w", c.Key, api.ErrInvalidArgument)
	}
	p, truncated := EncodeValue(c.Value)
	dst = dst[:CardSize]
	clear(dst)
	copy(dst[:KeyWidth], c.Key)
	dst[offTag] = byte(p.Tag)
	dst[offTextLen] = p.TextLen
	copy(dst[offPayload:], p.Data[:])
	return truncated, nil
}

// Unmarshal decodes one card from src[:CardSize].
func Unmarshal(src []byte) (Card, error) {
	if len(src) < CardSize {
		return Card{}, fmt.Errorf("card buffer of %d bytes: %w", len(src), api.ErrInvalidArgument)
	}
	key := src[:KeyWidth]
	if i := bytes.IndexByte(key, 0); i >= 0 {
		key = key[:i]
	}
	v, err := DecodeValue(Kind(src[offTag]), src[offTextLen], src[offPayload:CardSize])
	if err != nil {
		return Card{}, fmt.Errorf("card %q: %w", key, err)
	}
	return Card{Key: string(key), Value: v}, nil
}

// HeaderLine renders the card as an 80-column "KEY     = value" line.
func (c Card) HeaderLine() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-8s= ", c.Key))
	switch c.Value.Kind() {
	case KindText:
		s, _ := c.Value.AsText()
		b.WriteString(fmt.Sprintf("'%-8s'", strings.ReplaceAll(s, "'", "''")))
	default:
		b.WriteString(fmt.Sprintf("%20s", c.Value.String()))
	}
	line := b.String()
	if len(line) < HeaderLineWidth {
		line += strings.Repeat(" ", HeaderLineWidth-len(line))
	}
	return line
}

func (c Card) String() string { return c.Key + "=" + c.Value.String() }
