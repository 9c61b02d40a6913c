// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package optolink

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ffutop/vitoconnect/internal/config"
	"github.com/grid-x/serial"
)

const (
	// Default timeouts
	serialTimeout = 100 * time.Millisecond
	tcpTimeout    = 5 * time.Second
)

// Opener opens the byte stream to the Optolink adapter.
type Opener interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

// serialOpener opens a local serial port.
type serialOpener struct {
	// Serial port configuration.
	serial.Config
}

// NewSerialOpener maps cfg to a serial port opener. The Optolink adapter
// runs at 4800 baud, 8 data bits, even parity, 2 stop bits.
func NewSerialOpener(cfg config.SerialConfig) Opener {
	o := &serialOpener{}
	o.Config.Address = cfg.Device
	o.Config.BaudRate = cfg.BaudRate
	o.Config.DataBits = cfg.DataBits
	o.Config.StopBits = cfg.StopBits
	o.Config.Parity = cfg.Parity
	o.Config.Timeout = cfg.Timeout

	if o.Config.BaudRate == 0 {
		o.Config.BaudRate = 4800
	}
	if o.Config.DataBits == 0 {
		o.Config.DataBits = 8
	}
	if o.Config.StopBits == 0 {
		o.Config.StopBits = 2
	}
	if o.Config.Parity == "" {
		o.Config.Parity = "E"
	}
	if o.Config.Timeout == 0 {
		o.Config.Timeout = serialTimeout
	}
	return o
}

func (o *serialOpener) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	port, err := serial.Open(&o.Config)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", o.Config.Address, err)
	}
	return port, nil
}

func (o *serialOpener) String() string { return "serial:" + o.Config.Address }

// tcpOpener dials a serial-over-TCP bridge.
type tcpOpener struct {
	Address string
	Timeout time.Duration
}

// NewTCPOpener returns an opener for a ser2net style bridge.
func NewTCPOpener(cfg config.TcpConfig) Opener {
	o := &tcpOpener{Address: cfg.Address, Timeout: cfg.Timeout}
	if o.Timeout == 0 {
		o.Timeout = tcpTimeout
	}
	return o
}

func (o *tcpOpener) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	d := net.Dialer{Timeout: o.Timeout}
	conn, err := d.DialContext(ctx, "tcp", o.Address)
	if err != nil {
		return nil, fmt.Errorf("optolink: failed to connect to %s: %w", o.Address, err)
	}
	return conn, nil
}

func (o *tcpOpener) String() string { return "tcp:" + o.Address }
