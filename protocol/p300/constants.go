// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package p300

// Control bytes
const (
	EOT  = 0x04 // reset request sent by the host
	ENQ  = 0x05 // sent by the controller when it is idle
	ACK  = 0x06
	NACK = 0x15

	StartByte = 0x41
)

// Sync is sent by the host to start a P300 session.
var Sync = [...]byte{0x16, 0x00, 0x00}

// Message types
const (
	TypeRequest  = 0x00
	TypeResponse = 0x01
	TypeError    = 0x03
)

// Function codes
const (
	FuncRead  = 0x01
	FuncWrite = 0x02
)

const (
	// headerSize covers type, function, address and data length.
	headerSize = 5

	MinLength = headerSize
	// MaxDataLength is the largest payload a single telegram carries.
	MaxDataLength = 0xFF - headerSize
	// MaxFrameSize is start byte + length byte + body + checksum.
	MaxFrameSize = 1 + 1 + 0xFF + 1
)
