// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package optolink

import (
	"fmt"
	"time"

	"github.com/ffutop/vitoconnect/protocol/kw"
	"github.com/ffutop/vitoconnect/transport"
)

// kwSyncTimeout is how long the link stays ready without a sync byte. The
// controller sends one about every two seconds.
const kwSyncTimeout = 5 * time.Second

type kwState uint8

const (
	kwWaitSync kwState = iota
	kwReceive
)

type kwMachine struct {
	l        *Link
	st       kwState
	synced   bool
	lastSync time.Time
	deadline time.Time
	sent     bool
	want     int
	buf      []byte
}

func newKW(l *Link) *kwMachine {
	return &kwMachine{l: l, buf: make([]byte, 0, kw.MaxDataLength)}
}

func (m *kwMachine) reset() {
	m.st = kwWaitSync
	m.synced = false
	m.sent = false
	m.buf = m.buf[:0]
}

func (m *kwMachine) ready() bool    { return m.synced }
func (m *kwMachine) inFlight() bool { return m.sent }

func (m *kwMachine) state() string {
	if m.st == kwReceive {
		return "receive"
	}
	return "wait-sync"
}

func (m *kwMachine) step(now time.Time) {
	switch m.st {
	case kwWaitSync:
		for b, ok := m.l.nextByte(); ok; b, ok = m.l.nextByte() {
			if b != kw.Sync {
				continue
			}
			m.synced = true
			m.lastSync = now
			if m.l.active() != nil {
				m.sendActive(now, true)
				return
			}
		}
		if m.synced && now.Sub(m.lastSync) > kwSyncTimeout {
			m.l.logger.Warn("No sync from controller")
			m.synced = false
		}

	case kwReceive:
		for len(m.buf) < m.want {
			b, ok := m.l.nextByte()
			if !ok {
				break
			}
			m.buf = append(m.buf, b)
		}
		if len(m.buf) == m.want {
			m.receive(now)
			return
		}
		if now.After(m.deadline) {
			m.sent = false
			m.st = kwWaitSync
			m.l.discardInput()
			m.l.fail(transport.ErrCodeTimeout, nil)
		}
	}
}

// sendActive sends the active request. Only the first command after a sync
// byte carries the prefix.
func (m *kwMachine) sendActive(now time.Time, first bool) {
	req := m.l.active()
	var (
		raw []byte
		err error
	)
	if req.write {
		raw, err = kw.EncodeWrite(req.address, req.data, first)
	} else {
		raw, err = kw.EncodeRead(req.address, req.length, first)
	}
	if err != nil {
		m.l.fail(transport.ErrCodeLength, err)
		return
	}
	if err := m.l.send(raw); err != nil {
		m.l.portLost(now, err)
		return
	}
	m.sent = true
	m.st = kwReceive
	m.want = kw.ResponseLength(req.write, req.length)
	m.buf = m.buf[:0]
	m.deadline = now.Add(m.l.timeout)
}

func (m *kwMachine) receive(now time.Time) {
	req := m.l.active()
	m.sent = false
	m.st = kwWaitSync

	switch {
	case !req.write:
		m.l.complete(m.buf)
	case m.buf[0] == kw.WriteAck:
		m.l.complete(nil)
	default:
		m.l.fail(transport.ErrCodeDevice, fmt.Errorf("write not acknowledged: 0x%02X", m.buf[0]))
	}

	// Follow-up commands may be sent without waiting for the next sync.
	if m.l.port != nil && m.l.active() != nil {
		m.sendActive(now, false)
	}
}
