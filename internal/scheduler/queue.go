// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package scheduler

// queue is a FIFO of requests over a slice allocated once at full capacity.
// Removal shifts the remaining entries down instead of reslicing, so the
// backing array is reused for the lifetime of the scheduler.
type queue struct {
	items []Request
}

func newQueue(capacity int) queue {
	return queue{items: make([]Request, 0, capacity)}
}

func (q *queue) len() int { return len(q.items) }

func (q *queue) push(r Request) {
	q.items = append(q.items, r)
}

// head must only be called on a non-empty queue.
func (q *queue) head() Request { return q.items[0] }

func (q *queue) popHead() {
	if len(q.items) == 0 {
		return
	}
	n := copy(q.items, q.items[1:])
	q.items[n] = Request{} // drop the token reference
	q.items = q.items[:n]
}

func (q *queue) contains(address uint16, dir Direction, source SourceTag) bool {
	for i := range q.items {
		if q.items[i].matches(address, dir, source) {
			return true
		}
	}
	return false
}

// removeFunc deletes every entry for which remove returns true, keeping the
// order of the rest. When keepHead is set the head is never removed.
func (q *queue) removeFunc(keepHead bool, remove func(Request) bool) int {
	kept := 0
	for i := range q.items {
		if (keepHead && i == 0) || !remove(q.items[i]) {
			q.items[kept] = q.items[i]
			kept++
		}
	}
	removed := len(q.items) - kept
	clear(q.items[kept:])
	q.items = q.items[:kept]
	return removed
}
