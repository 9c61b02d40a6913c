// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package vitoconnect

import (
	"sync"

	"github.com/rs/xid"
)

var completionPool = sync.Pool{New: func() any { return new(completion) }}

// completion is the token of a scheduled request. It has a single owner at
// any time: the producer until Enqueue succeeds, then the scheduler and the
// link, and finally the data or error handler, which returns it to the pool.
type completion struct {
	id    xid.ID
	dp    Datapoint
	write bool
	// verify marks a read that checks a previous write against expect.
	verify bool
	// marker is the modification marker the write was scheduled for.
	marker uint64
	expect []byte
}

func newCompletion(dp Datapoint, write bool) *completion {
	c := completionPool.Get().(*completion)
	c.id = xid.New()
	c.dp = dp
	c.write = write
	return c
}

func (c *completion) release() {
	c.dp = nil
	c.write = false
	c.verify = false
	c.marker = 0
	c.expect = c.expect[:0]
	completionPool.Put(c)
}

func grow(b []byte, n int) []byte {
	if cap(b) < n {
		return make([]byte, n)
	}
	return b[:n]
}
