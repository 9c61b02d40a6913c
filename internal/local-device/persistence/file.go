// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/vitoconnect/internal/local-device/model"
)

// FileStorage implements persistence using file operations.
// The file is a raw 64 KiB image of the memory, one byte per address.
type FileStorage struct {
	path string
	file *os.File
	data []byte
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load loads the memory by file operations.
func (ms *FileStorage) Load() (*model.Memory, error) {
	f, err := openImage(ms.path)
	if err != nil {
		return nil, err
	}
	ms.file = f

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	ms.data = data

	// Construct the Memory backed by the file data slice
	return mapBytesToMemory(data), nil
}

// Save flushes the data to disk.
func (ms *FileStorage) Save(m *model.Memory) error {
	return ms.sync(0, totalSize)
}

// OnWrite writes the modified range through to the file.
func (ms *FileStorage) OnWrite(address uint16, length int) {
	if err := ms.sync(int(address), length); err != nil {
		slog.Error("Failed to sync file", "err", err)
	}
}

func (ms *FileStorage) sync(offset, length int) error {
	if ms.data == nil || ms.file == nil {
		return nil
	}
	offset, end := clampRange(offset, length)
	if _, err := ms.file.WriteAt(ms.data[offset:end], int64(offset)); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := ms.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// Close the file.
func (ms *FileStorage) Close() error {
	if ms.file == nil {
		return nil
	}
	err := ms.file.Close()
	ms.file = nil
	return err
}
