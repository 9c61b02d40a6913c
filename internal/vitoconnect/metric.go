// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vitoconnect

import "sync/atomic"

// Metrics counts controller events. It is safe to read from any goroutine.
type Metrics struct {
	SubmittedCount    atomic.Uint64
	CompletedCount    atomic.Uint64
	ErrorCount        atomic.Uint64
	SaturatedCount    atomic.Uint64
	VerifiedCount     atomic.Uint64
	MismatchCount     atomic.Uint64
	DroppedWriteCount atomic.Uint64
	LateResultCount   atomic.Uint64
}
