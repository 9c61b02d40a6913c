// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package kw encodes telegrams of the older KW protocol. KW has no framing
// on the wire: the controller sends a sync byte about every two seconds and
// the host answers with a command right after it. Responses are raw data of
// the requested length, or a single ack byte for writes.
package kw

import "fmt"

const (
	Sync   = 0x05
	Prefix = 0x01

	FuncRead  = 0xF7
	FuncWrite = 0xF4

	WriteAck = 0x00

	MaxDataLength = 0xFF
)

// EncodeRead returns the command for a read. The prefix byte is included
// when first is set, i.e. for the first command after a sync byte.
func EncodeRead(address uint16, length uint8, first bool) ([]byte, error) {
	if length == 0 {
		return nil, fmt.Errorf("kw: read length must not be zero")
	}
	return encode(FuncRead, address, length, nil, first), nil
}

// EncodeWrite returns the command for a write.
func EncodeWrite(address uint16, data []byte, first bool) ([]byte, error) {
	if len(data) == 0 || len(data) > MaxDataLength {
		return nil, fmt.Errorf("kw: write length %d out of range [1, %d]", len(data), MaxDataLength)
	}
	return encode(FuncWrite, address, uint8(len(data)), data, first), nil
}

func encode(function byte, address uint16, length uint8, data []byte, first bool) []byte {
	raw := make([]byte, 0, 5+len(data))
	if first {
		raw = append(raw, Prefix)
	}
	raw = append(raw, function, byte(address>>8), byte(address), length)
	return append(raw, data...)
}

// ResponseLength returns the number of bytes the controller answers a
// request with.
func ResponseLength(write bool, length uint8) int {
	if write {
		return 1
	}
	return int(length)
}
