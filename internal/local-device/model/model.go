// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"errors"
	"fmt"
	"sync"
)

const (
	MaxAddress = 65535
	Size       = MaxAddress + 1
)

// ErrAddressRange is returned for accesses beyond the address space.
var ErrAddressRange = errors.New("address range out of bounds")

// Memory holds the data points of a simulated controller.
// It uses a flat byte-addressed model covering the full 16-bit address space.
type Memory struct {
	mu sync.RWMutex

	Data []byte
}

// NewMemory creates a new memory initialized to zero.
func NewMemory() *Memory {
	return &Memory{Data: make([]byte, Size)}
}

// Read copies length bytes starting at address.
func (m *Memory) Read(address uint16, length int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, length); err != nil {
		return nil, err
	}

	result := make([]byte, length)
	copy(result, m.Data[address:])
	return result, nil
}

// Write stores data starting at address.
func (m *Memory) Write(address uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := validateRange(address, len(data)); err != nil {
		return err
	}

	copy(m.Data[address:], data)
	return nil
}

// View calls fn with the bytes of a validated range while holding the read
// lock. fn must not retain b.
func (m *Memory) View(address uint16, length int, fn func(b []byte)) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := validateRange(address, length); err != nil {
		return err
	}
	fn(m.Data[int(address) : int(address)+length])
	return nil
}

func validateRange(address uint16, length int) error {
	if length <= 0 {
		return fmt.Errorf("length must be greater than 0")
	}
	// address is 0-based.
	if int(address)+length > Size {
		return fmt.Errorf("%w: 0x%04X+%d", ErrAddressRange, address, length)
	}
	return nil
}
