// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package p300

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrChecksum = errors.New("p300: checksum mismatch")

const (
	stateStart = 1 << iota
	stateLength
	stateBody
	stateChecksum
)

type InvalidLengthError struct {
	Length byte
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("p300: invalid length received: %d", e.Length)
}

// Decoder assembles telegrams from a byte stream one byte at a time, so
// that a caller polling a serial port never blocks on a partial frame.
// Bytes before the start byte are skipped.
type Decoder struct {
	state  int
	length byte
	n      int
	body   [0xFF]byte
	frame  Frame
}

// NewDecoder returns a Decoder waiting for a start byte.
func NewDecoder() *Decoder {
	return &Decoder{state: stateStart}
}

// Reset drops any partially decoded telegram.
func (d *Decoder) Reset() {
	d.state = stateStart
	d.length = 0
	d.n = 0
}

// Busy reports whether a telegram has been started but not completed.
func (d *Decoder) Busy() bool { return d.state != stateStart }

// Feed consumes one byte. It returns a frame once a complete telegram with a
// valid checksum has been read. The frame's Data aliases the decoder buffer
// and is only valid until the next call to Feed.
//
// After an error the decoder is reset and waits for the next start byte.
func (d *Decoder) Feed(b byte) (*Frame, error) {
	switch d.state {
	case stateStart:
		if b == StartByte {
			d.state = stateLength
		}
	case stateLength:
		if b < MinLength {
			d.Reset()
			return nil, &InvalidLengthError{Length: b}
		}
		d.length = b
		d.n = 0
		d.state = stateBody
	case stateBody:
		d.body[d.n] = b
		d.n++
		if d.n == int(d.length) {
			d.state = stateChecksum
		}
	case stateChecksum:
		body := d.body[:d.length]
		want := d.length + Checksum(body)
		d.Reset()
		if b != want {
			return nil, ErrChecksum
		}
		return d.parse(body)
	}
	return nil, nil
}

func (d *Decoder) parse(body []byte) (*Frame, error) {
	f := &d.frame
	f.Type = body[0]
	f.Function = body[1]
	f.Address = binary.BigEndian.Uint16(body[2:4])
	f.Length = body[4]
	f.Data = body[headerSize:]

	// Reads answer with the data, write and error telegrams carry none.
	if f.Type == TypeResponse && f.Function == FuncRead && len(f.Data) != int(f.Length) {
		return nil, fmt.Errorf("p300: read response announces %d bytes, carries %d", f.Length, len(f.Data))
	}
	return f, nil
}
