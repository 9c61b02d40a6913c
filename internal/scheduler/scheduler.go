// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package scheduler orders read and write requests for a half-duplex link
// that can only carry one exchange at a time.
//
// Writes always go before reads, equal requests are merged, at most one
// request is in flight, a minimum gap separates consecutive exchanges and
// requests older than the timeout are evicted without a callback.
//
// A Scheduler is not safe for concurrent use. It is meant to be driven from
// a single tick loop; only its Metrics may be read from other goroutines.
package scheduler

import (
	"log/slog"
	"time"
)

// Scheduler holds the pending requests of one link.
type Scheduler struct {
	opts   options
	logger *slog.Logger

	write queue
	read  queue

	// active is set while the head of activeDir's queue is in flight.
	active    bool
	activeDir Direction

	lastRelease time.Time
	lastRetry   time.Time

	seq     uint64
	metrics Metrics
}

// New creates a Scheduler. Both queues are allocated up front at full
// capacity, so enqueueing never allocates.
func New(opts ...Option) (*Scheduler, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt.apply(&o); err != nil {
			return nil, err
		}
	}

	return &Scheduler{
		opts:   o,
		logger: o.logger,
		write:  newQueue(o.capacity),
		read:   newQueue(o.capacity),
	}, nil
}

// Enqueue schedules a request.
//
// On Duplicate nothing is added and the caller still owns token; no
// completion will ever reference it. On Rejected the scheduler is full.
func (s *Scheduler) Enqueue(address uint16, length uint8, dir Direction, token any, source SourceTag) Result {
	if s.isPending(address, dir, source) {
		s.metrics.incDuplicateCount()
		s.logger.Debug("duplicate request avoided", "address", hex16(address), "dir", dir, "source", source)
		return Duplicate
	}

	if s.Size() >= s.opts.capacity {
		s.metrics.incRejectedCount()
		s.logger.Debug("request queue full", "address", hex16(address), "dir", dir,
			"writes", s.write.len(), "reads", s.read.len())
		return Rejected
	}

	s.seq++
	req := Request{
		Address:    address,
		Length:     length,
		Direction:  dir,
		Source:     source,
		Token:      token,
		EnqueuedAt: s.opts.now(),
		Seq:        s.seq,
	}
	s.queueFor(dir).push(req)
	s.metrics.incEnqueuedCount()

	s.logger.Debug("request enqueued", "address", hex16(address), "dir", dir, "seq", req.Seq,
		"writes", s.write.len(), "reads", s.read.len())
	return Queued
}

// isPending reports whether an equal request is queued or in flight. Reads
// are only checked once the read queue is longer than the dedup threshold.
func (s *Scheduler) isPending(address uint16, dir Direction, source SourceTag) bool {
	if dir == Read && s.read.len() <= s.opts.readDedupThreshold {
		return false
	}

	// The in-flight request is the head of its queue, so scanning the queue
	// covers it too.
	return s.queueFor(dir).contains(address, dir, source)
}

// Next returns the request that should be on the link now.
//
// It returns false while the retry throttle runs, while the inter-request
// delay runs, when nothing is queued, and on the tick an in-flight request is
// evicted for exceeding the timeout. While a request is in flight it is
// returned again on every call.
func (s *Scheduler) Next() (Request, bool) {
	now := s.opts.now()

	if !s.lastRetry.IsZero() && now.Sub(s.lastRetry) < s.opts.retryThrottle {
		return Request{}, false
	}

	if s.active {
		cur := s.queueFor(s.activeDir).head()
		if now.Sub(cur.EnqueuedAt) > s.opts.requestTimeout {
			s.logger.Warn("Request timed out, releasing", "address", hex16(cur.Address), "dir", cur.Direction,
				"seq", cur.Seq, "age", now.Sub(cur.EnqueuedAt))
			s.metrics.incEvictedCount()
			s.release(now)
			return Request{}, false
		}
		return cur, true
	}

	if !s.lastRelease.IsZero() && now.Sub(s.lastRelease) < s.opts.interRequestDelay {
		return Request{}, false
	}

	for _, dir := range [...]Direction{Write, Read} {
		q := s.queueFor(dir)
		s.dropExpiredHeads(q, now)
		if q.len() == 0 {
			continue
		}
		s.active = true
		s.activeDir = dir
		s.metrics.incSelectedCount()

		cur := q.head()
		s.logger.Debug("processing request", "address", hex16(cur.Address), "dir", dir, "seq", cur.Seq)
		return cur, true
	}

	return Request{}, false
}

// dropExpiredHeads removes timed out requests from the front of q so that
// an expired request is never selected, even before CleanupStale runs.
func (s *Scheduler) dropExpiredHeads(q *queue, now time.Time) {
	for q.len() > 0 {
		head := q.head()
		if now.Sub(head.EnqueuedAt) <= s.opts.requestTimeout {
			return
		}
		s.logger.Warn("Removing stale request", "address", hex16(head.Address), "dir", head.Direction, "seq", head.Seq)
		q.popHead()
		s.metrics.addStaleCount(1)
	}
}

// RetryCurrent puts the in-flight request back at the head of its queue and
// throttles Next, for when the link could not take the request this tick.
func (s *Scheduler) RetryCurrent() {
	if !s.active {
		return
	}
	s.active = false
	s.lastRetry = s.opts.now()
	s.metrics.incRetryCount()
}

// ReleaseCurrent removes the in-flight request after its completion or error
// and starts the inter-request delay. It is a no-op when nothing is in flight.
func (s *Scheduler) ReleaseCurrent() {
	if !s.active {
		return
	}
	s.metrics.incReleasedCount()
	s.release(s.opts.now())
}

func (s *Scheduler) release(now time.Time) {
	s.queueFor(s.activeDir).popHead()
	s.active = false
	s.lastRelease = now

	s.logger.Debug("request released", "writes", s.write.len(), "reads", s.read.len())
}

// CleanupStale removes queued requests older than the timeout. The in-flight
// request is left alone; Next evicts it lazily. It returns the number of
// removed requests.
func (s *Scheduler) CleanupStale() int {
	now := s.opts.now()
	stale := func(r Request) bool {
		if now.Sub(r.EnqueuedAt) <= s.opts.requestTimeout {
			return false
		}
		s.logger.Warn("Removing stale request", "address", hex16(r.Address), "dir", r.Direction, "seq", r.Seq)
		return true
	}

	removed := s.write.removeFunc(s.active && s.activeDir == Write, stale)
	removed += s.read.removeFunc(s.active && s.activeDir == Read, stale)
	s.metrics.addStaleCount(removed)
	return removed
}

// Current returns the in-flight request.
func (s *Scheduler) Current() (Request, bool) {
	if !s.active {
		return Request{}, false
	}
	return s.queueFor(s.activeDir).head(), true
}

// Size returns the number of queued requests, the in-flight one included.
func (s *Scheduler) Size() int { return s.write.len() + s.read.len() }

// WriteCount returns the number of queued writes.
func (s *Scheduler) WriteCount() int { return s.write.len() }

// ReadCount returns the number of queued reads.
func (s *Scheduler) ReadCount() int { return s.read.len() }

// IsEmpty reports whether nothing is queued or in flight.
func (s *Scheduler) IsEmpty() bool { return s.Size() == 0 && !s.active }

// HasCurrent reports whether a request is in flight.
func (s *Scheduler) HasCurrent() bool { return s.active }

// Capacity returns the configured capacity.
func (s *Scheduler) Capacity() int { return s.opts.capacity }

// Metrics returns the scheduler counters.
func (s *Scheduler) Metrics() *Metrics { return &s.metrics }

func (s *Scheduler) queueFor(dir Direction) *queue {
	if dir == Write {
		return &s.write
	}
	return &s.read
}

type hex16 uint16

func (h hex16) LogValue() slog.Value {
	const digits = "0123456789ABCDEF"
	b := [6]byte{'0', 'x', digits[h>>12&0xF], digits[h>>8&0xF], digits[h>>4&0xF], digits[h&0xF]}
	return slog.StringValue(string(b[:]))
}
