// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package optolink implements transport.Link over the Optolink adapter of
// Viessmann heating controllers, speaking either P300 or the older KW
// protocol.
package optolink

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/vitoconnect/internal/config"
	"github.com/ffutop/vitoconnect/transport"
	"github.com/grid-x/serial"
)

const (
	DefaultQueueCapacity   = 4
	DefaultResponseTimeout = 2 * time.Second

	reconnectDelay = 5 * time.Second
	rxBacklog      = 64
)

// Protocol selects the wire protocol.
type Protocol string

const (
	P300 Protocol = "P300"
	KW   Protocol = "KW"
)

type request struct {
	address uint16
	length  uint8
	write   bool
	data    []byte
	token   any
}

// machine is a protocol state machine. It is stepped from Link.Loop and
// talks to the controller through the link helpers.
type machine interface {
	reset()
	step(now time.Time)
	ready() bool
	// inFlight reports whether the active request has been sent.
	inFlight() bool
	state() string
}

// Link is a non-blocking transport.Link. A reader goroutine moves received
// bytes into a channel; everything else, callbacks included, runs inside
// Loop on the caller's goroutine.
type Link struct {
	opener   Opener
	protocol Protocol
	logger   *slog.Logger
	now      func() time.Time
	timeout  time.Duration

	// connMu guards port against Close racing the tick loop.
	connMu sync.Mutex
	ctx    context.Context
	port   io.ReadWriteCloser
	done   chan struct{}
	closed bool
	lostAt time.Time

	rx    chan []byte
	rxErr chan error
	in    []byte
	inPos int

	queue []request
	head  int
	n     int

	machine machine
	onData  transport.DataHandler
	onError transport.ErrorHandler

	metrics Metrics
}

var _ transport.Link = (*Link)(nil)

// New creates a Link on top of opener. It does not open the port; call
// Connect first.
func New(opener Opener, cfg config.LinkConfig, logger *slog.Logger) (*Link, error) {
	if logger == nil {
		logger = slog.Default()
	}
	capacity := cfg.QueueSize
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	timeout := cfg.ResponseTimeout
	if timeout <= 0 {
		timeout = DefaultResponseTimeout
	}

	l := &Link{
		opener:   opener,
		protocol: Protocol(cfg.Protocol),
		logger:   logger.With("link", opener.String(), "protocol", cfg.Protocol),
		now:      time.Now,
		timeout:  timeout,
		rx:       make(chan []byte, rxBacklog),
		rxErr:    make(chan error, 1),
		queue:    make([]request, capacity),
	}

	switch l.protocol {
	case P300:
		l.machine = newP300(l)
	case KW:
		l.machine = newKW(l)
	default:
		return nil, fmt.Errorf("optolink: unknown protocol %q", cfg.Protocol)
	}
	return l, nil
}

// Connect opens the port and starts the handshake on the next Loop.
func (l *Link) Connect(ctx context.Context) error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	l.ctx = ctx
	l.closed = false
	return l.connect(ctx)
}

// connect opens the port if it is not open. Caller must hold connMu.
func (l *Link) connect(ctx context.Context) error {
	if l.port != nil {
		return nil
	}
	port, err := l.opener.Open(ctx)
	if err != nil {
		return err
	}
	l.port = port
	l.done = make(chan struct{})
	l.flushInput()
	l.machine.reset()
	go l.readLoop(port, l.done)

	l.logger.Info("Optolink port opened")
	return nil
}

// Close closes the port. Requests still queued are dropped without callback.
func (l *Link) Close() error {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	l.closed = true
	return l.closePort()
}

// closePort closes the port if it is open. Caller must hold connMu.
func (l *Link) closePort() (err error) {
	if l.port != nil {
		close(l.done)
		err = l.port.Close()
		l.port = nil
	}
	return
}

// readLoop forwards everything read from port until the port fails or done
// is closed.
func (l *Link) readLoop(port io.Reader, done <-chan struct{}) {
	buf := make([]byte, 64)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case l.rx <- chunk:
			case <-done:
				return
			}
		}
		if err != nil {
			if errors.Is(err, serial.ErrTimeout) {
				continue
			}
			select {
			case <-done:
				// closed by us
				return
			default:
			}
			select {
			case l.rxErr <- err:
			case <-done:
			}
			return
		}
	}
}

// Loop implements transport.Link.
func (l *Link) Loop() {
	l.connMu.Lock()
	defer l.connMu.Unlock()

	now := l.now()
	if l.port == nil {
		l.reconnect(now)
		return
	}

drain:
	for {
		select {
		case chunk := <-l.rx:
			l.in = append(l.in, chunk...)
		case err := <-l.rxErr:
			l.portLost(now, err)
			return
		default:
			break drain
		}
	}

	l.machine.step(now)
	l.compactInput()
}

func (l *Link) reconnect(now time.Time) {
	if l.closed || l.ctx == nil || now.Sub(l.lostAt) < reconnectDelay {
		return
	}
	l.lostAt = now
	if err := l.connect(l.ctx); err != nil {
		l.logger.Warn("Failed to reopen Optolink port", "err", err)
		return
	}
	l.metrics.Reconnects.Add(1)
}

func (l *Link) portLost(now time.Time, err error) {
	l.logger.Error("Optolink port failed", "err", err)
	if l.n > 0 && l.machine.inFlight() {
		l.fail(transport.ErrCodeIO, err)
	}
	l.closePort()
	l.lostAt = now
	l.machine.reset()
}

// IsReady implements transport.Link.
func (l *Link) IsReady() bool {
	return l.port != nil && l.machine.ready()
}

// QueueSize implements transport.Link.
func (l *Link) QueueSize() int { return l.n }

// QueueCapacity implements transport.Link.
func (l *Link) QueueCapacity() int { return len(l.queue) }

// Read implements transport.Link.
func (l *Link) Read(address uint16, length uint8, token any) bool {
	if length == 0 {
		return false
	}
	return l.push(address, length, false, nil, token)
}

// Write implements transport.Link.
func (l *Link) Write(address uint16, length uint8, data []byte, token any) bool {
	if length == 0 || len(data) < int(length) {
		return false
	}
	return l.push(address, length, true, data[:length], token)
}

func (l *Link) push(address uint16, length uint8, write bool, data []byte, token any) bool {
	if l.n == len(l.queue) {
		return false
	}
	slot := &l.queue[(l.head+l.n)%len(l.queue)]
	slot.address = address
	slot.length = length
	slot.write = write
	slot.data = append(slot.data[:0], data...)
	slot.token = token
	l.n++
	return true
}

// OnData implements transport.Link.
func (l *Link) OnData(h transport.DataHandler) { l.onData = h }

// OnError implements transport.Link.
func (l *Link) OnError(h transport.ErrorHandler) { l.onError = h }

// Metrics returns the link counters.
func (l *Link) Metrics() *Metrics { return &l.metrics }

// State returns the name of the protocol state, for diagnostics.
func (l *Link) State() string { return l.machine.state() }

// active returns the request at the head of the queue.
func (l *Link) active() *request {
	if l.n == 0 {
		return nil
	}
	return &l.queue[l.head]
}

func (l *Link) pop() request {
	req := l.queue[l.head]
	l.queue[l.head].token = nil
	l.head = (l.head + 1) % len(l.queue)
	l.n--
	return req
}

// complete finishes the active request with data, which is only valid
// during the callback.
func (l *Link) complete(data []byte) {
	req := l.pop()
	l.metrics.FramesReceived.Add(1)
	l.logger.Debug("request completed", "address", fmt.Sprintf("0x%04X", req.address), "write", req.write,
		"data", hex.EncodeToString(data))
	if l.onData != nil {
		l.onData(data, req.token)
	}
}

// fail finishes the active request with an error.
func (l *Link) fail(code transport.ErrorCode, cause error) {
	req := l.pop()
	l.metrics.Errors.Add(1)
	err := &transport.Error{Code: code, Address: req.address, Err: cause}
	l.logger.Warn("Request failed", "err", err)
	if l.onError != nil {
		l.onError(err, req.token)
	}
}

// send writes raw to the port.
func (l *Link) send(raw []byte) error {
	l.logger.Debug("send to optolink", "raw", hex.EncodeToString(raw))
	if _, err := l.port.Write(raw); err != nil {
		return err
	}
	l.metrics.FramesSent.Add(1)
	return nil
}

// nextByte takes one received byte.
func (l *Link) nextByte() (byte, bool) {
	if l.inPos >= len(l.in) {
		return 0, false
	}
	b := l.in[l.inPos]
	l.inPos++
	return b, true
}

// discardInput drops everything received so far.
func (l *Link) discardInput() {
	l.inPos = len(l.in)
}

// flushInput drops bytes left over from a previous port.
func (l *Link) flushInput() {
	for {
		select {
		case <-l.rx:
		case <-l.rxErr:
		default:
			l.in = l.in[:0]
			l.inPos = 0
			return
		}
	}
}

func (l *Link) compactInput() {
	if l.inPos == 0 {
		return
	}
	n := copy(l.in, l.in[l.inPos:])
	l.in = l.in[:n]
	l.inPos = 0
}
