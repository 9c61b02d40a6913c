// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package datapoint

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrOutOfRange   = errors.New("datapoint: value out of range")
	ErrLength       = errors.New("datapoint: wrong data length")
	ErrUnknownCodec = errors.New("datapoint: unknown codec")
)

// MaxRawLength is the longest value the raw codec carries.
const MaxRawLength = 8

// Value is a decoded data point value. Numeric codecs use Number, the raw
// codec uses Raw.
type Value struct {
	Number float64
	Raw    []byte
}

func (v Value) String() string {
	if v.Raw != nil {
		return hex.EncodeToString(v.Raw)
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

// Equal reports whether v and o hold the same value.
func (v Value) Equal(o Value) bool {
	if v.Raw != nil || o.Raw != nil {
		return string(v.Raw) == string(o.Raw)
	}
	return v.Number == o.Number
}

// Codec converts between the bytes stored by the controller and a Value.
// All multi-byte values are little endian.
type Codec interface {
	Name() string
	Length() uint8
	Decode(b []byte) (Value, error)
	Encode(v Value, dst []byte) error
	Parse(s string) (Value, error)
}

type numericCodec struct {
	name   string
	length uint8
	decode func(b []byte) float64
	encode func(f float64, dst []byte) error
}

func (c *numericCodec) Name() string  { return c.name }
func (c *numericCodec) Length() uint8 { return c.length }

func (c *numericCodec) Decode(b []byte) (Value, error) {
	if len(b) != int(c.length) {
		return Value{}, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrLength, c.name, c.length, len(b))
	}
	return Value{Number: c.decode(b)}, nil
}

func (c *numericCodec) Encode(v Value, dst []byte) error {
	if len(dst) < int(c.length) {
		return fmt.Errorf("%w: %s wants %d bytes, got %d", ErrLength, c.name, c.length, len(dst))
	}
	if math.IsNaN(v.Number) || math.IsInf(v.Number, 0) {
		return fmt.Errorf("%w: %v", ErrOutOfRange, v.Number)
	}
	return c.encode(v.Number, dst[:c.length])
}

func (c *numericCodec) Parse(s string) (Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return Value{}, fmt.Errorf("datapoint: invalid %s value %q: %w", c.name, s, err)
	}
	v := Value{Number: f}
	var probe [4]byte
	if err := c.Encode(v, probe[:]); err != nil {
		return Value{}, err
	}
	return v, nil
}

// scaled returns the integer stored for f at the given scale, checked
// against [min, max].
func scaled(f, scale, min, max float64) (int64, error) {
	n := math.Round(f * scale)
	if n < min || n > max {
		return 0, fmt.Errorf("%w: %v", ErrOutOfRange, f)
	}
	return int64(n), nil
}

var codecs = map[string]*numericCodec{
	// Temperature in 1/10 °C, signed.
	"temp": {
		name: "temp", length: 2,
		decode: func(b []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(b))) / 10 },
		encode: func(f float64, dst []byte) error {
			n, err := scaled(f, 10, math.MinInt16, math.MaxInt16)
			binary.LittleEndian.PutUint16(dst, uint16(int16(n)))
			return err
		},
	},
	// Short temperature in whole °C.
	"temp_s": {
		name: "temp_s", length: 1,
		decode: func(b []byte) float64 { return float64(b[0]) },
		encode: func(f float64, dst []byte) error {
			n, err := scaled(f, 1, 0, math.MaxUint8)
			dst[0] = byte(n)
			return err
		},
	},
	"stat": {
		name: "stat", length: 1,
		decode: func(b []byte) float64 {
			if b[0] != 0 {
				return 1
			}
			return 0
		},
		encode: func(f float64, dst []byte) error {
			switch f {
			case 0:
				dst[0] = 0
			case 1:
				dst[0] = 1
			default:
				return fmt.Errorf("%w: %v", ErrOutOfRange, f)
			}
			return nil
		},
	},
	"count": {
		name: "count", length: 4,
		decode: func(b []byte) float64 { return float64(binary.LittleEndian.Uint32(b)) },
		encode: func(f float64, dst []byte) error {
			n, err := scaled(f, 1, 0, math.MaxUint32)
			binary.LittleEndian.PutUint32(dst, uint32(n))
			return err
		},
	},
	"count_s": {
		name: "count_s", length: 2,
		decode: func(b []byte) float64 { return float64(binary.LittleEndian.Uint16(b)) },
		encode: func(f float64, dst []byte) error {
			n, err := scaled(f, 1, 0, math.MaxUint16)
			binary.LittleEndian.PutUint16(dst, uint16(n))
			return err
		},
	},
	// Operating hours, stored in seconds.
	"hours": {
		name: "hours", length: 4,
		decode: func(b []byte) float64 { return float64(binary.LittleEndian.Uint32(b)) / 3600 },
		encode: func(f float64, dst []byte) error {
			n, err := scaled(f, 3600, 0, math.MaxUint32)
			binary.LittleEndian.PutUint32(dst, uint32(n))
			return err
		},
	},
	// Coefficient of performance in 1/10.
	"cop": {
		name: "cop", length: 1,
		decode: func(b []byte) float64 { return float64(b[0]) / 10 },
		encode: func(f float64, dst []byte) error {
			n, err := scaled(f, 10, 0, math.MaxUint8)
			dst[0] = byte(n)
			return err
		},
	},
}

type rawCodec struct {
	length uint8
}

func (c rawCodec) Name() string  { return "raw" }
func (c rawCodec) Length() uint8 { return c.length }

func (c rawCodec) Decode(b []byte) (Value, error) {
	if len(b) != int(c.length) {
		return Value{}, fmt.Errorf("%w: raw wants %d bytes, got %d", ErrLength, c.length, len(b))
	}
	return Value{Raw: append([]byte(nil), b...)}, nil
}

func (c rawCodec) Encode(v Value, dst []byte) error {
	if len(v.Raw) != int(c.length) || len(dst) < int(c.length) {
		return fmt.Errorf("%w: raw wants %d bytes, got %d", ErrLength, c.length, len(v.Raw))
	}
	copy(dst, v.Raw)
	return nil
}

func (c rawCodec) Parse(s string) (Value, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return Value{}, fmt.Errorf("datapoint: invalid raw value %q: %w", s, err)
	}
	if len(b) != int(c.length) {
		return Value{}, fmt.Errorf("%w: raw wants %d bytes, got %d", ErrLength, c.length, len(b))
	}
	return Value{Raw: b}, nil
}

// CodecByName returns the codec called name. length is only used by the raw
// codec and must be within [1, MaxRawLength].
func CodecByName(name string, length int) (Codec, error) {
	if name == "raw" {
		if length < 1 || length > MaxRawLength {
			return nil, fmt.Errorf("%w: raw length %d", ErrLength, length)
		}
		return rawCodec{length: uint8(length)}, nil
	}
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	return c, nil
}
