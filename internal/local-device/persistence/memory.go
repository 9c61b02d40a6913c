// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/ffutop/vitoconnect/internal/local-device/model"

// MemoryStorage is a no-op storage (non-persistent).
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() (*model.Memory, error) {
	return model.NewMemory(), nil
}

func (ms *MemoryStorage) Save(m *model.Memory) error {
	return nil
}

func (ms *MemoryStorage) OnWrite(address uint16, length int) {
	// No-op
}

func (ms *MemoryStorage) Close() error {
	return nil
}
