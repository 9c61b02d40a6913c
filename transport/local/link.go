// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package local implements transport.Link on top of a simulated controller.
package local

import (
	"context"
	"log/slog"
	"time"

	"github.com/ffutop/vitoconnect/internal/config"
	localdevice "github.com/ffutop/vitoconnect/internal/local-device"
	"github.com/ffutop/vitoconnect/transport"
)

const DefaultQueueCapacity = 4

type request struct {
	address uint16
	length  uint8
	write   bool
	data    []byte
	token   any
	due     time.Time
}

// Link answers requests from a local device. Requests complete one after
// another, each after the configured latency, on a later Loop.
type Link struct {
	device  *localdevice.Device
	latency time.Duration
	logger  *slog.Logger
	now     func() time.Time

	connected bool
	queue     []request
	head, n   int
	lastDue   time.Time

	onData  transport.DataHandler
	onError transport.ErrorHandler
}

var _ transport.Link = (*Link)(nil)

// New creates a Link serving requests from device.
func New(device *localdevice.Device, cfg config.LinkConfig, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	capacity := cfg.QueueSize
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Link{
		device:  device,
		latency: cfg.Local.Latency,
		logger:  logger.With("link", "local"),
		now:     time.Now,
		queue:   make([]request, capacity),
	}
}

// Connect is a no-op for the local device.
func (c *Link) Connect(ctx context.Context) error {
	c.connected = true
	return nil
}

// Close closes the device storage.
func (c *Link) Close() error {
	c.connected = false
	return c.device.Close()
}

// IsReady implements transport.Link.
func (c *Link) IsReady() bool { return c.connected }

// QueueSize implements transport.Link.
func (c *Link) QueueSize() int { return c.n }

// QueueCapacity implements transport.Link.
func (c *Link) QueueCapacity() int { return len(c.queue) }

// Read implements transport.Link.
func (c *Link) Read(address uint16, length uint8, token any) bool {
	if length == 0 {
		return false
	}
	return c.push(address, length, false, nil, token)
}

// Write implements transport.Link.
func (c *Link) Write(address uint16, length uint8, data []byte, token any) bool {
	if length == 0 || len(data) < int(length) {
		return false
	}
	return c.push(address, length, true, data[:length], token)
}

func (c *Link) push(address uint16, length uint8, write bool, data []byte, token any) bool {
	if !c.connected || c.n == len(c.queue) {
		return false
	}

	// Half duplex: a request starts once the previous one is answered.
	start := c.now()
	if c.lastDue.After(start) {
		start = c.lastDue
	}
	c.lastDue = start.Add(c.latency)

	slot := &c.queue[(c.head+c.n)%len(c.queue)]
	slot.address = address
	slot.length = length
	slot.write = write
	slot.data = append(slot.data[:0], data...)
	slot.token = token
	slot.due = c.lastDue
	c.n++
	return true
}

// Loop completes every request whose latency has elapsed.
func (c *Link) Loop() {
	now := c.now()
	for c.n > 0 {
		req := &c.queue[c.head]
		if now.Before(req.due) {
			return
		}
		c.process(req)
	}
}

func (c *Link) process(req *request) {
	var (
		data []byte
		err  error
	)
	if req.write {
		err = c.device.Write(req.address, req.data)
	} else {
		data, err = c.device.Read(req.address, int(req.length))
	}

	token := req.token
	address := req.address
	req.token = nil
	c.head = (c.head + 1) % len(c.queue)
	c.n--

	if err != nil {
		lerr := &transport.Error{Code: transport.ErrCodeDevice, Address: address, Err: err}
		c.logger.Warn("Request failed", "err", lerr)
		if c.onError != nil {
			c.onError(lerr, token)
		}
		return
	}
	if c.onData != nil {
		c.onData(data, token)
	}
}

// OnData implements transport.Link.
func (c *Link) OnData(h transport.DataHandler) { c.onData = h }

// OnError implements transport.Link.
func (c *Link) OnError(h transport.ErrorHandler) { c.onError = h }
