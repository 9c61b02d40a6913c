// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"github.com/ffutop/vitoconnect/internal/local-device/model"
)

// Storage defines the interface for persisting the simulated controller memory.
type Storage interface {
	// Load loads the memory from storage.
	// If no data exists, it returns a zeroed memory.
	Load() (*model.Memory, error)

	// Save saves the current memory to storage.
	Save(m *model.Memory) error

	// OnWrite is a hook called whenever a range of the memory is modified.
	// It allows the storage to perform real-time persistence (e.g. sync to disk or DB).
	OnWrite(address uint16, length int)

	Close() error
}
