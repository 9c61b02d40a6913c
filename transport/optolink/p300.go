// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package optolink

import (
	"errors"
	"fmt"
	"time"

	"github.com/ffutop/vitoconnect/protocol/p300"
	"github.com/ffutop/vitoconnect/transport"
)

const (
	// The controller sends ENQ about every two seconds while no session is
	// open.
	p300ResetTimeout = 3 * time.Second
	// An idle session is re-synced after this long.
	p300IdleTimeout = 15 * time.Second
)

type p300State uint8

const (
	p300Reset p300State = iota
	p300ResetAck
	p300Init
	p300InitAck
	p300Idle
	p300SendAck
	p300Receive
)

var p300StateNames = [...]string{"reset", "reset-ack", "init", "init-ack", "idle", "send-ack", "receive"}

type p300Machine struct {
	l        *Link
	st       p300State
	deadline time.Time
	lastSeen time.Time
	sent     bool
	dec      *p300.Decoder
}

func newP300(l *Link) *p300Machine {
	return &p300Machine{l: l, dec: p300.NewDecoder()}
}

func (m *p300Machine) reset() {
	m.st = p300Reset
	m.sent = false
	m.dec.Reset()
}

func (m *p300Machine) ready() bool    { return m.st >= p300Idle }
func (m *p300Machine) inFlight() bool { return m.sent }
func (m *p300Machine) state() string  { return p300StateNames[m.st] }

// step runs transitions until the machine waits for input or time.
func (m *p300Machine) step(now time.Time) {
	for m.l.port != nil {
		prev := m.st
		m.stepOnce(now)
		if m.st == prev {
			return
		}
	}
}

func (m *p300Machine) stepOnce(now time.Time) {
	switch m.st {
	case p300Reset:
		m.l.discardInput()
		if !m.send(now, []byte{p300.EOT}) {
			return
		}
		m.l.metrics.Resets.Add(1)
		m.st = p300ResetAck
		m.deadline = now.Add(p300ResetTimeout)

	case p300ResetAck:
		for b, ok := m.l.nextByte(); ok; b, ok = m.l.nextByte() {
			if b == p300.ENQ {
				m.st = p300Init
				return
			}
		}
		if now.After(m.deadline) {
			m.l.logger.Debug("no ENQ from controller, resetting again")
			m.st = p300Reset
		}

	case p300Init:
		if !m.send(now, p300.Sync[:]) {
			return
		}
		m.st = p300InitAck
		m.deadline = now.Add(m.l.timeout)

	case p300InitAck:
		for b, ok := m.l.nextByte(); ok; b, ok = m.l.nextByte() {
			if b == p300.ACK {
				m.l.logger.Debug("P300 session established")
				m.st = p300Idle
				m.lastSeen = now
				return
			}
		}
		if now.After(m.deadline) {
			m.st = p300Reset
		}

	case p300Idle:
		m.l.discardInput()
		if now.Sub(m.lastSeen) > p300IdleTimeout {
			m.st = p300Init
			return
		}
		req := m.l.active()
		if req == nil {
			return
		}
		var (
			raw []byte
			err error
		)
		if req.write {
			raw, err = p300.EncodeWrite(req.address, req.data)
		} else {
			raw, err = p300.EncodeRead(req.address, req.length)
		}
		if err != nil {
			m.l.fail(transport.ErrCodeLength, err)
			return
		}
		if !m.send(now, raw) {
			return
		}
		m.sent = true
		m.st = p300SendAck
		m.deadline = now.Add(m.l.timeout)

	case p300SendAck:
		for b, ok := m.l.nextByte(); ok; b, ok = m.l.nextByte() {
			switch b {
			case p300.ACK:
				m.dec.Reset()
				m.st = p300Receive
				m.deadline = now.Add(m.l.timeout)
				return
			case p300.NACK:
				m.finish(now, p300Idle)
				m.l.fail(transport.ErrCodeNack, nil)
				return
			}
		}
		if now.After(m.deadline) {
			m.finish(now, p300Reset)
			m.l.fail(transport.ErrCodeTimeout, nil)
		}

	case p300Receive:
		for b, ok := m.l.nextByte(); ok; b, ok = m.l.nextByte() {
			frame, err := m.dec.Feed(b)
			if err != nil {
				m.receiveError(now, err)
				return
			}
			if frame != nil {
				m.receive(now, frame)
				return
			}
		}
		if now.After(m.deadline) {
			m.finish(now, p300Reset)
			m.l.fail(transport.ErrCodeTimeout, nil)
		}
	}
}

func (m *p300Machine) receive(now time.Time, frame *p300.Frame) {
	if !m.send(now, []byte{p300.ACK}) {
		return
	}
	req := m.l.active()
	m.finish(now, p300Idle)

	switch {
	case frame.IsError():
		m.l.fail(transport.ErrCodeDevice, errors.New("controller returned an error telegram"))
	case frame.Address != req.address:
		m.l.fail(transport.ErrCodeDevice, fmt.Errorf("response for 0x%04X", frame.Address))
	case req.write:
		m.l.complete(nil)
	case len(frame.Data) != int(req.length):
		m.l.fail(transport.ErrCodeLength, fmt.Errorf("got %d bytes, want %d", len(frame.Data), req.length))
	default:
		m.l.complete(frame.Data)
	}
}

func (m *p300Machine) receiveError(now time.Time, err error) {
	var lengthErr *p300.InvalidLengthError
	switch {
	case errors.Is(err, p300.ErrChecksum):
		if !m.send(now, []byte{p300.NACK}) {
			return
		}
		m.finish(now, p300Idle)
		m.l.fail(transport.ErrCodeChecksum, err)
	case errors.As(err, &lengthErr):
		m.finish(now, p300Reset)
		m.l.fail(transport.ErrCodeLength, err)
	default:
		if !m.send(now, []byte{p300.ACK}) {
			return
		}
		m.finish(now, p300Idle)
		m.l.fail(transport.ErrCodeLength, err)
	}
}

// finish ends the exchange of the active request. The caller completes or
// fails the request afterwards.
func (m *p300Machine) finish(now time.Time, next p300State) {
	m.sent = false
	m.st = next
	m.lastSeen = now
}

// send writes raw, handing port failures to the link. It reports whether
// the machine may go on.
func (m *p300Machine) send(now time.Time, raw []byte) bool {
	if err := m.l.send(raw); err != nil {
		m.l.portLost(now, err)
		return false
	}
	return true
}
