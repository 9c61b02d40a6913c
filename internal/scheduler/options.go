// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Defaults match the timing requirements of the Optolink interface.
const (
	DefaultCapacity           = 32
	DefaultInterRequestDelay  = 50 * time.Millisecond
	DefaultRetryThrottle      = 100 * time.Millisecond
	DefaultRequestTimeout     = 30 * time.Second
	DefaultReadDedupThreshold = 8

	MaxCapacity = 1024
)

var ErrInvalidOption = errors.New("scheduler: invalid option")

type options struct {
	capacity           int
	interRequestDelay  time.Duration
	retryThrottle      time.Duration
	requestTimeout     time.Duration
	readDedupThreshold int
	now                func() time.Time
	logger             *slog.Logger
}

func defaultOptions() options {
	return options{
		capacity:           DefaultCapacity,
		interRequestDelay:  DefaultInterRequestDelay,
		retryThrottle:      DefaultRetryThrottle,
		requestTimeout:     DefaultRequestTimeout,
		readDedupThreshold: DefaultReadDedupThreshold,
		now:                time.Now,
		logger:             slog.Default(),
	}
}

// Option configures a Scheduler.
type Option interface {
	apply(*options) error
}

type optFunc func(*options) error

func (f optFunc) apply(o *options) error { return f(o) }

// WithCapacity sets the maximum number of queued requests, the in-flight one
// included.
func WithCapacity(n int) Option {
	return optFunc(func(o *options) error {
		if n < 1 || n > MaxCapacity {
			return fmt.Errorf("%w: capacity %d out of range [1, %d]", ErrInvalidOption, n, MaxCapacity)
		}
		o.capacity = n
		return nil
	})
}

// WithInterRequestDelay sets the minimum gap between the release of one
// request and the selection of the next.
func WithInterRequestDelay(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d < 0 {
			return fmt.Errorf("%w: negative inter-request delay %v", ErrInvalidOption, d)
		}
		o.interRequestDelay = d
		return nil
	})
}

// WithRetryThrottle sets how long Next stays silent after RetryCurrent.
func WithRetryThrottle(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d < 0 {
			return fmt.Errorf("%w: negative retry throttle %v", ErrInvalidOption, d)
		}
		o.retryThrottle = d
		return nil
	})
}

// WithRequestTimeout sets the age after which a request is evicted, queued or
// in flight.
func WithRequestTimeout(d time.Duration) Option {
	return optFunc(func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("%w: request timeout must be positive", ErrInvalidOption)
		}
		o.requestTimeout = d
		return nil
	})
}

// WithReadDedupThreshold sets the read queue length above which reads are
// deduplicated. Zero deduplicates every read.
func WithReadDedupThreshold(n int) Option {
	return optFunc(func(o *options) error {
		if n < 0 {
			return fmt.Errorf("%w: negative read dedup threshold %d", ErrInvalidOption, n)
		}
		o.readDedupThreshold = n
		return nil
	})
}

// WithClock replaces the monotonic clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return optFunc(func(o *options) error {
		if now == nil {
			return fmt.Errorf("%w: clock must not be nil", ErrInvalidOption)
		}
		o.now = now
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return optFunc(func(o *options) error {
		if l == nil {
			return fmt.Errorf("%w: logger must not be nil", ErrInvalidOption)
		}
		o.logger = l
		return nil
	})
}
