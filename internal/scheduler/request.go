// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package scheduler

import (
	"fmt"
	"time"
)

// Direction is the transfer direction of a request.
type Direction uint8

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	switch d {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// SourceTag names the logical owner of a request. It is assigned when the
// owner registers and is only used for deduplication.
type SourceTag uint8

// Request is one pending read or write. Requests are values: the scheduler
// hands out copies and never dereferences Token.
type Request struct {
	Address   uint16
	Length    uint8
	Direction Direction
	Source    SourceTag
	// Token is passed through to the link and back to the completion
	// handlers untouched.
	Token      any
	EnqueuedAt time.Time
	// Seq is unique per scheduler and never zero.
	Seq uint64
}

func (r Request) matches(address uint16, dir Direction, source SourceTag) bool {
	return r.Address == address && r.Direction == dir && r.Source == source
}

// Result reports the outcome of Enqueue.
type Result uint8

const (
	// Queued means a new entry was appended.
	Queued Result = iota
	// Duplicate means an equal request is already queued or in flight.
	// Nothing was added and no callback will ever carry the token.
	Duplicate
	// Rejected means the scheduler is at capacity.
	Rejected
)

// OK reports whether the request is (or already was) scheduled.
func (r Result) OK() bool {
	return r != Rejected
}

func (r Result) String() string {
	switch r {
	case Queued:
		return "queued"
	case Duplicate:
		return "duplicate"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("result(%d)", uint8(r))
	}
}
