// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package p300

import (
	"fmt"
)

// Frame is a decoded P300 telegram.
type Frame struct {
	Type     byte
	Function byte
	Address  uint16
	// Length is the data length announced by the telegram. Write responses
	// announce the written length but carry no data.
	Length uint8
	Data   []byte
}

// IsError reports whether the controller answered with an error telegram.
func (f *Frame) IsError() bool { return f.Type == TypeError }

// Checksum returns the P300 checksum: the sum of all bytes modulo 256.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// EncodeRead encodes a read request:
//
//	Start      : 0x41
//	Length     : 0x05
//	Type       : 0x00
//	Function   : 0x01
//	Address    : 2 bytes, big endian
//	DataLength : 1 byte
//	Checksum   : 1 byte
func EncodeRead(address uint16, length uint8) ([]byte, error) {
	if length == 0 {
		return nil, fmt.Errorf("p300: read length must not be zero")
	}
	return encode(FuncRead, address, length, nil), nil
}

// EncodeWrite encodes a write request. The telegram layout matches
// EncodeRead followed by the data bytes before the checksum.
func EncodeWrite(address uint16, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data) > MaxDataLength {
		return nil, fmt.Errorf("p300: write length %d out of range [1, %d]", len(data), MaxDataLength)
	}
	return encode(FuncWrite, address, uint8(len(data)), data), nil
}

func encode(function byte, address uint16, length uint8, data []byte) []byte {
	raw := make([]byte, 0, 1+1+headerSize+len(data)+1)
	raw = append(raw,
		StartByte,
		byte(headerSize+len(data)),
		TypeRequest,
		function,
		byte(address>>8),
		byte(address),
		length,
	)
	raw = append(raw, data...)
	return append(raw, Checksum(raw[1:]))
}
