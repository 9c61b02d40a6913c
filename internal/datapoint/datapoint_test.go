// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package datapoint

import (
	"sync"
	"testing"

	"github.com/ffutop/vitoconnect/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTemp(t *testing.T) *Datapoint {
	t.Helper()
	c, err := CodecByName("temp", 0)
	require.NoError(t, err)
	return New("outside", 0x5525, c)
}

func TestModificationMarker(t *testing.T) {
	dp := newTemp(t)
	assert.Zero(t, dp.LastModification())

	require.NoError(t, dp.Set(Value{Number: 21.5}))
	first := dp.LastModification()
	assert.NotZero(t, first)

	require.NoError(t, dp.Set(Value{Number: 22}))
	second := dp.LastModification()
	assert.NotEqual(t, first, second)

	// a verification of the older write must not clear the newer one
	assert.False(t, dp.ClearModification(first))
	assert.Equal(t, second, dp.LastModification())

	assert.True(t, dp.ClearModification(second))
	assert.Zero(t, dp.LastModification())
	assert.False(t, dp.ClearModification(0))
}

func TestSetRejectsInvalid(t *testing.T) {
	dp := newTemp(t)
	assert.ErrorIs(t, dp.Set(Value{Number: 5000}), ErrOutOfRange)
	assert.Zero(t, dp.LastModification())
	assert.Error(t, dp.SetString("hot"))
}

func TestEncodeDecode(t *testing.T) {
	dp := newTemp(t)
	assert.Equal(t, uint8(2), dp.Length())
	assert.ErrorIs(t, dp.Encode(make([]byte, 2)), ErrNoValue)

	var published []float64
	dp.OnValue(func(d *Datapoint, v Value) {
		assert.Same(t, dp, d)
		published = append(published, v.Number)
	})

	require.NoError(t, dp.Decode([]byte{0xD2, 0x00}))
	v, ok := dp.Value()
	require.True(t, ok)
	assert.Equal(t, 21.0, v.Number)
	assert.Equal(t, []float64{21}, published)
	// decoding is not a local modification
	assert.Zero(t, dp.LastModification())

	require.NoError(t, dp.SetString("-0.5"))
	buf := make([]byte, 2)
	require.NoError(t, dp.Encode(buf))
	assert.Equal(t, []byte{0xFB, 0xFF}, buf)

	assert.ErrorIs(t, dp.Decode([]byte{0x01}), ErrLength)
	assert.Len(t, published, 1)
}

func TestDecodeKeepsPendingChange(t *testing.T) {
	tests := []struct {
		name    string
		set     string
		read    []byte
		wantErr error
		want    float64
		payload []byte
	}{
		{name: "device value ignored", set: "21.5", read: []byte{0xC8, 0x00}, wantErr: ErrPendingWrite, want: 21.5, payload: []byte{0xD7, 0x00}},
		{name: "same value ignored", set: "20", read: []byte{0xC8, 0x00}, wantErr: ErrPendingWrite, want: 20, payload: []byte{0xC8, 0x00}},
		{name: "short read checked first", set: "21.5", read: []byte{0xC8}, wantErr: ErrLength, want: 21.5, payload: []byte{0xD7, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dp := newTemp(t)
			published := 0
			dp.OnValue(func(*Datapoint, Value) { published++ })

			require.Zero(t, dp.LastModification())
			require.NoError(t, dp.SetString(tt.set))
			marker := dp.LastModification()

			assert.ErrorIs(t, dp.Decode(tt.read), tt.wantErr)
			assert.Equal(t, marker, dp.LastModification())
			assert.Zero(t, published)

			v, ok := dp.Value()
			require.True(t, ok)
			assert.Equal(t, tt.want, v.Number)
			buf := make([]byte, 2)
			require.NoError(t, dp.Encode(buf))
			assert.Equal(t, tt.payload, buf)

			// once confirmed, reads are stored again
			require.True(t, dp.ClearModification(marker))
			require.NoError(t, dp.Decode([]byte{0xC8, 0x00}))
			v, _ = dp.Value()
			assert.Equal(t, 20.0, v.Number)
			assert.Equal(t, 1, published)
		})
	}
}

func TestDecodeRacingSet(t *testing.T) {
	dp := newTemp(t)
	device := []byte{0xC8, 0x00}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			_ = dp.Decode(device)
		}
	}()
	require.NoError(t, dp.SetString("21.5"))
	wg.Wait()

	// whatever order the calls ran in, the change is never lost
	assert.NotZero(t, dp.LastModification())
	buf := make([]byte, 2)
	require.NoError(t, dp.Encode(buf))
	assert.Equal(t, []byte{0xD7, 0x00}, buf)
}

func TestFromConfig(t *testing.T) {
	dp, err := FromConfig(config.DatapointConfig{Name: "mode", Addr: 0x2323, Codec: "stat", Value: "1"})
	require.NoError(t, err)
	assert.Equal(t, "mode", dp.Name())
	assert.Equal(t, uint16(0x2323), dp.Address())
	assert.Equal(t, "mode@0x2323", dp.String())
	assert.NotZero(t, dp.LastModification())

	_, err = FromConfig(config.DatapointConfig{Name: "x", Codec: "nope"})
	assert.ErrorIs(t, err, ErrUnknownCodec)
	_, err = FromConfig(config.DatapointConfig{Name: "x", Codec: "stat", Value: "2"})
	assert.ErrorIs(t, err, ErrOutOfRange)
}
