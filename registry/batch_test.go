// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/core/card"
)

func keys(cards []card.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Key
	}
	return out
}

func TestBatch_LastWriteWinsKeepsOrder(t *testing.T) {
	b := NewBatch().
		SetText("SRC_NAME", "A").
		SetFloat("OBSFREQ", 1400).
		SetText("SRC_NAME", "B")

	require.NoError(t, b.Err())
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, []string{"SRC_NAME", "OBSFREQ"}, keys(b.Cards()))
	v, ok := b.Get("SRC_NAME")
	require.True(t, ok)
	assert.Equal(t, card.Text("B"), v)
}

func TestBatch_TypeMismatchIsSticky(t *testing.T) {
	b := NewBatch().SetText("OBSNCHAN", "lots").SetInt("NPOL", 4)
	assert.ErrorIs(t, b.Err(), api.ErrTypeMismatch)
	assert.False(t, b.Touches("NPOL"))
}

func TestBatch_InvalidKey(t *testing.T) {
	b := NewBatch().SetInt("", 1)
	assert.Error(t, b.Err())
	b = NewBatch().Delete("WAY_TOO_LONG_FOR_A_CARD_KEY")
	assert.Error(t, b.Err())
}

func TestBatch_TruncationWarns(t *testing.T) {
	b := NewBatch().SetText("BASENAME", strings.Repeat("x", card.PayloadWidth+5))
	require.NoError(t, b.Err())
	w := b.Warnings()
	require.Len(t, w, 1)
	assert.ErrorIs(t, w[0], api.ErrTextTruncated)
}

func TestBatch_DeleteThenSet(t *testing.T) {
	b := NewBatch().Delete("CURBLOCK")
	_, ok := b.Get("CURBLOCK")
	assert.False(t, ok)
	assert.True(t, b.Touches("CURBLOCK"))
	assert.Empty(t, b.Cards())

	b.SetInt("CURBLOCK", 2)
	v, ok := b.Get("CURBLOCK")
	require.True(t, ok)
	assert.Equal(t, card.Int(2), v)
}

func TestBatch_Merge(t *testing.T) {
	a := NewBatch().SetInt("SCANNUM", 1).SetText("SRC_NAME", "A")
	o := NewBatch().SetText("SRC_NAME", "B").Delete("CURBLOCK").SetFloat("OBSFREQ", 800)
	a.Merge(o)

	assert.Equal(t, 4, a.Len())
	assert.Equal(t, []string{"SCANNUM", "SRC_NAME", "OBSFREQ"}, keys(a.Cards()))
	assert.True(t, a.Touches("CURBLOCK"))
}

func TestBatch_ApplyOverBase(t *testing.T) {
	base := []card.Card{
		card.New("SRC_NAME", card.Text("old")),
		card.New("CURBLOCK", card.Int(5)),
		card.New("OBSFREQ", card.Float(1400)),
	}
	b := NewBatch().
		SetFloat("OBSFREQ", 800).
		SetInt("SCANNUM", 2).
		Delete("CURBLOCK").
		Delete("NOT_THERE")

	out := b.apply(base)
	assert.Equal(t, []string{"SRC_NAME", "OBSFREQ", "SCANNUM"}, keys(out))
	assert.Equal(t, card.Float(800), out[1].Value)
	assert.Equal(t, card.Text("old"), out[0].Value)
}
