// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	s, err := New()
	require.NoError(t, err)

	assert.Equal(t, DefaultCapacity, s.Capacity())
	assert.Equal(t, DefaultInterRequestDelay, s.opts.interRequestDelay)
	assert.Equal(t, DefaultRetryThrottle, s.opts.retryThrottle)
	assert.Equal(t, DefaultRequestTimeout, s.opts.requestTimeout)
	assert.Equal(t, DefaultReadDedupThreshold, s.opts.readDedupThreshold)
	assert.Equal(t, DefaultCapacity, cap(s.write.items))
	assert.Equal(t, DefaultCapacity, cap(s.read.items))
	assert.True(t, s.IsEmpty())
}

func TestNew_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"ZeroCapacity", WithCapacity(0)},
		{"HugeCapacity", WithCapacity(MaxCapacity + 1)},
		{"NegativeDelay", WithInterRequestDelay(-time.Millisecond)},
		{"NegativeThrottle", WithRetryThrottle(-time.Millisecond)},
		{"ZeroTimeout", WithRequestTimeout(0)},
		{"NegativeDedupThreshold", WithReadDedupThreshold(-1)},
		{"NilClock", WithClock(nil)},
		{"NilLogger", WithLogger(nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opt)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidOption)
		})
	}
}

func TestNew_WithOptions(t *testing.T) {
	s, err := New(
		WithCapacity(4),
		WithInterRequestDelay(0),
		WithRetryThrottle(time.Second),
		WithRequestTimeout(time.Minute),
		WithReadDedupThreshold(0),
	)
	require.NoError(t, err)

	assert.Equal(t, 4, s.Capacity())
	assert.Equal(t, time.Duration(0), s.opts.interRequestDelay)
	assert.Equal(t, time.Second, s.opts.retryThrottle)
	assert.Equal(t, time.Minute, s.opts.requestTimeout)
	assert.Equal(t, 0, s.opts.readDedupThreshold)
}
