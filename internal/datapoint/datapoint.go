// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package datapoint implements the values a heating controller exposes: a
// fixed address and length plus the codec that turns bytes into a value.
package datapoint

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ffutop/vitoconnect/internal/config"
)

var (
	// ErrNoValue is returned when encoding a data point that was never set.
	ErrNoValue = errors.New("datapoint: no value")
	// ErrPendingWrite is returned by Decode while a local change waits for
	// confirmation. The value read is not stored.
	ErrPendingWrite = errors.New("datapoint: local change pending")
)

// Datapoint is safe for concurrent use: the tick loop encodes and decodes
// while other goroutines may call Set.
type Datapoint struct {
	name    string
	address uint16
	codec   Codec

	mu       sync.Mutex
	value    Value
	hasValue bool
	// marker is bumped by every Set and cleared once a write is verified.
	marker  uint64
	counter uint64
	onValue func(dp *Datapoint, v Value)
}

// New creates a data point.
func New(name string, address uint16, codec Codec) *Datapoint {
	return &Datapoint{name: name, address: address, codec: codec}
}

// FromConfig creates a data point from its configuration. A configured
// value is applied with Set, so it is written on the first update.
func FromConfig(cfg config.DatapointConfig) (*Datapoint, error) {
	codec, err := CodecByName(cfg.Codec, cfg.Length)
	if err != nil {
		return nil, fmt.Errorf("datapoint %q: %w", cfg.Name, err)
	}
	dp := New(cfg.Name, cfg.Addr, codec)
	if cfg.Value != "" {
		if err := dp.SetString(cfg.Value); err != nil {
			return nil, fmt.Errorf("datapoint %q: %w", cfg.Name, err)
		}
	}
	return dp, nil
}

func (dp *Datapoint) Name() string    { return dp.name }
func (dp *Datapoint) Address() uint16 { return dp.address }
func (dp *Datapoint) Length() uint8   { return dp.codec.Length() }
func (dp *Datapoint) Codec() Codec    { return dp.codec }

// Set stores a local value that has to be written to the controller.
func (dp *Datapoint) Set(v Value) error {
	var probe [MaxRawLength]byte
	if err := dp.codec.Encode(v, probe[:]); err != nil {
		return err
	}

	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.value = v
	dp.hasValue = true
	dp.counter++
	dp.marker = dp.counter
	return nil
}

// SetString parses s with the codec and calls Set.
func (dp *Datapoint) SetString(s string) error {
	v, err := dp.codec.Parse(s)
	if err != nil {
		return err
	}
	return dp.Set(v)
}

// LastModification returns the marker of the last unverified Set, or zero.
func (dp *Datapoint) LastModification() uint64 {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return dp.marker
}

// ClearModification clears the marker if it still equals marker, i.e. no
// Set happened since the write being verified was scheduled.
func (dp *Datapoint) ClearModification(marker uint64) bool {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if dp.marker == 0 || dp.marker != marker {
		return false
	}
	dp.marker = 0
	return true
}

// Encode writes the current value into dst, which must hold Length bytes.
func (dp *Datapoint) Encode(dst []byte) error {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if !dp.hasValue {
		return ErrNoValue
	}
	return dp.codec.Encode(dp.value, dst)
}

// Decode stores the value read from the controller and publishes it. While
// a Set is unconfirmed the value is left alone and ErrPendingWrite returned;
// the check and the store happen under one lock, so a concurrent Set is
// never overwritten by what the controller held before.
func (dp *Datapoint) Decode(data []byte) error {
	v, err := dp.codec.Decode(data)
	if err != nil {
		return err
	}

	dp.mu.Lock()
	if dp.marker != 0 {
		dp.mu.Unlock()
		return ErrPendingWrite
	}
	dp.value = v
	dp.hasValue = true
	fn := dp.onValue
	dp.mu.Unlock()

	if fn != nil {
		fn(dp, v)
	}
	return nil
}

// Value returns the current value.
func (dp *Datapoint) Value() (Value, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return dp.value, dp.hasValue
}

// OnValue registers fn to be called after every successful Decode.
func (dp *Datapoint) OnValue(fn func(dp *Datapoint, v Value)) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.onValue = fn
}

func (dp *Datapoint) String() string {
	return fmt.Sprintf("%s@0x%04X", dp.name, dp.address)
}
