// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package transport

import (
	"context"
	"errors"
	"fmt"
)

// DataHandler receives the payload of a completed request together with the
// token it was submitted with. data is only valid during the call.
type DataHandler func(data []byte, token any)

// ErrorHandler receives the failure of a request together with its token.
type ErrorHandler func(err error, token any)

// Connector opens and closes the underlying port.
type Connector interface {
	Connect(ctx context.Context) error
	Close() error
}

// Link is a half-duplex connection to the heating controller.
//
// A Link is driven from a single goroutine: Loop advances its protocol state
// machine and is the only place where the data and error handlers run. For
// every request accepted by Read or Write exactly one of the handlers is
// called, exactly once, on the same or a later Loop.
type Link interface {
	Connector

	// Loop advances the link state machine. It never blocks.
	Loop()
	// IsReady reports whether the link finished its handshake and accepts
	// exchanges.
	IsReady() bool
	// QueueSize returns the number of accepted requests not yet completed.
	QueueSize() int
	// QueueCapacity returns the maximum QueueSize.
	QueueCapacity() int
	// Read submits a read. It returns false if the link queue is full.
	Read(address uint16, length uint8, token any) bool
	// Write submits a write. data is copied before Write returns. It returns
	// false if the link queue is full.
	Write(address uint16, length uint8, data []byte, token any) bool

	OnData(h DataHandler)
	OnError(h ErrorHandler)
}

// ErrorCode classifies link failures.
type ErrorCode uint8

const (
	ErrCodeTimeout ErrorCode = iota + 1
	ErrCodeLength
	ErrCodeNack
	ErrCodeChecksum
	ErrCodeDevice
	ErrCodeIO
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeTimeout:
		return "timeout"
	case ErrCodeLength:
		return "length"
	case ErrCodeNack:
		return "nack"
	case ErrCodeChecksum:
		return "checksum"
	case ErrCodeDevice:
		return "device"
	case ErrCodeIO:
		return "io"
	default:
		return fmt.Sprintf("code(%d)", uint8(c))
	}
}

// Error is the error passed to an ErrorHandler.
type Error struct {
	Code    ErrorCode
	Address uint16
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("link: %s error at 0x%04X: %v", e.Code, e.Address, e.Err)
	}
	return fmt.Sprintf("link: %s error at 0x%04X", e.Code, e.Address)
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the ErrorCode of err, or zero if err is not an *Error.
func Code(err error) ErrorCode {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return 0
}
