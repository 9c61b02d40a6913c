// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package optolink

import "sync/atomic"

// Metrics counts link activity. It is safe to read from any goroutine.
type Metrics struct {
	FramesSent     atomic.Uint64
	FramesReceived atomic.Uint64
	Errors         atomic.Uint64
	Resets         atomic.Uint64
	Reconnects     atomic.Uint64
}
