// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package scheduler

import "sync/atomic"

// Metrics contains atomic counters for a Scheduler. They may be read from any
// goroutine while the scheduler itself is driven by a single one.
type Metrics struct {
	// EnqueuedCount indicates the number of requests appended to a queue.
	EnqueuedCount atomic.Uint64
	// DuplicateCount indicates the number of requests dropped as duplicates.
	DuplicateCount atomic.Uint64
	// RejectedCount indicates the number of requests refused at capacity.
	RejectedCount atomic.Uint64
	// SelectedCount indicates the number of times a request became in flight.
	SelectedCount atomic.Uint64
	// RetryCount indicates the number of RetryCurrent calls that un-marked a request.
	RetryCount atomic.Uint64
	// ReleasedCount indicates the number of requests released after completion.
	ReleasedCount atomic.Uint64
	// EvictedCount indicates the number of in-flight requests evicted on timeout.
	EvictedCount atomic.Uint64
	// StaleCount indicates the number of queued requests removed by CleanupStale.
	StaleCount atomic.Uint64
}

func (m *Metrics) incEnqueuedCount()  { m.EnqueuedCount.Add(1) }
func (m *Metrics) incDuplicateCount() { m.DuplicateCount.Add(1) }
func (m *Metrics) incRejectedCount()  { m.RejectedCount.Add(1) }
func (m *Metrics) incSelectedCount()  { m.SelectedCount.Add(1) }
func (m *Metrics) incRetryCount()     { m.RetryCount.Add(1) }
func (m *Metrics) incReleasedCount()  { m.ReleasedCount.Add(1) }
func (m *Metrics) incEvictedCount()   { m.EvictedCount.Add(1) }

func (m *Metrics) addStaleCount(n int) {
	m.StaleCount.Add(uint64(n))
}
