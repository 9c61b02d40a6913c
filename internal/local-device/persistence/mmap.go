// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/vitoconnect/internal/local-device/model"
)

var errNotMapped = errors.New("mmap storage not loaded")

// MmapStorage keeps the device memory in a shared mapping of the image
// file. Writes reach the page cache immediately; OnWrite syncs only the
// pages a write touched.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

// Load maps the image and returns a Memory backed by the mapping.
func (ms *MmapStorage) Load() (*model.Memory, error) {
	f, err := openImage(ms.path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	ms.file = f
	ms.data = data
	return mapBytesToMemory(data), nil
}

// Save syncs the whole mapping.
func (ms *MmapStorage) Save(m *model.Memory) error {
	if ms.data == nil {
		return errNotMapped
	}
	return ms.data.Flush()
}

// OnWrite syncs the pages holding [address, address+length).
func (ms *MmapStorage) OnWrite(address uint16, length int) {
	if err := ms.flushRange(int(address), length); err != nil {
		slog.Error("Failed to sync mmap range", "address", address, "length", length, "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var errs []error
	if ms.data != nil {
		errs = append(errs, ms.data.Unmap())
		ms.data = nil
	}
	if ms.file != nil {
		errs = append(errs, ms.file.Close())
		ms.file = nil
	}
	return errors.Join(errs...)
}
