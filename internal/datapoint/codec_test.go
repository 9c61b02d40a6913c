// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package datapoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecs(t *testing.T) {
	tests := []struct {
		codec string
		raw   []byte
		want  float64
	}{
		{"temp", []byte{0xD2, 0x00}, 21.0},
		{"temp", []byte{0x9C, 0xFF}, -10.0},
		{"temp_s", []byte{0x2D}, 45},
		{"stat", []byte{0x01}, 1},
		{"stat", []byte{0x00}, 0},
		{"count", []byte{0x10, 0x27, 0x00, 0x00}, 10000},
		{"count_s", []byte{0x34, 0x12}, 0x1234},
		{"hours", []byte{0x10, 0x0E, 0x00, 0x00}, 1},
		{"cop", []byte{0x2A}, 4.2},
	}

	for _, tt := range tests {
		t.Run(tt.codec, func(t *testing.T) {
			c, err := CodecByName(tt.codec, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.codec, c.Name())
			require.Equal(t, len(tt.raw), int(c.Length()))

			v, err := c.Decode(tt.raw)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, v.Number, 1e-9)

			dst := make([]byte, c.Length())
			require.NoError(t, c.Encode(v, dst))
			assert.Equal(t, tt.raw, dst)
		})
	}
}

func TestCodecStatNormalizes(t *testing.T) {
	c, _ := CodecByName("stat", 0)
	v, err := c.Decode([]byte{0x05})
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Number)
}

func TestCodecErrors(t *testing.T) {
	temp, _ := CodecByName("temp", 0)
	_, err := temp.Decode([]byte{0x01})
	assert.ErrorIs(t, err, ErrLength)
	assert.ErrorIs(t, temp.Encode(Value{Number: 4000}, make([]byte, 2)), ErrOutOfRange)
	assert.ErrorIs(t, temp.Encode(Value{Number: 1}, make([]byte, 1)), ErrLength)

	stat, _ := CodecByName("stat", 0)
	assert.ErrorIs(t, stat.Encode(Value{Number: 2}, make([]byte, 1)), ErrOutOfRange)

	tempS, _ := CodecByName("temp_s", 0)
	_, err = tempS.Parse("-1")
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = tempS.Parse("warm")
	assert.Error(t, err)

	_, err = CodecByName("pressure", 0)
	assert.ErrorIs(t, err, ErrUnknownCodec)
	_, err = CodecByName("raw", 9)
	assert.ErrorIs(t, err, ErrLength)
}

func TestRawCodec(t *testing.T) {
	c, err := CodecByName("raw", 3)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), c.Length())

	v, err := c.Parse("0x0a0b0c")
	require.NoError(t, err)
	assert.Equal(t, "0a0b0c", v.String())

	dst := make([]byte, 3)
	require.NoError(t, c.Encode(v, dst))
	assert.Equal(t, []byte{0x0A, 0x0B, 0x0C}, dst)

	got, err := c.Decode(dst)
	require.NoError(t, err)
	assert.True(t, got.Equal(v))

	_, err = c.Parse("0a0b")
	assert.ErrorIs(t, err, ErrLength)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "21.5", Value{Number: 21.5}.String())
	assert.Equal(t, "-3", Value{Number: -3}.String())
	assert.True(t, Value{Number: 1}.Equal(Value{Number: 1}))
	assert.False(t, Value{Number: 1}.Equal(Value{Raw: []byte{1}}))
}
