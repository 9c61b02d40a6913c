// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package localdevice simulates the data point memory of a heating
// controller, so the gateway can run without an Optolink adapter.
package localdevice

import (
	"log/slog"

	"github.com/ffutop/vitoconnect/internal/config"
	"github.com/ffutop/vitoconnect/internal/local-device/model"
	"github.com/ffutop/vitoconnect/internal/local-device/persistence"
)

// ErrAddressRange is returned for accesses beyond the 16-bit address space.
var ErrAddressRange = model.ErrAddressRange

// Device answers reads and writes from a persisted memory.
type Device struct {
	memory  *model.Memory
	storage persistence.Storage
}

// New creates a Device on top of an already loaded memory.
func New(m *model.Memory, storage persistence.Storage) *Device {
	return &Device{memory: m, storage: storage}
}

// Open selects the storage from cfg and loads the memory. A storage that
// fails to load is replaced by a non-persistent one.
func Open(cfg config.PersistenceConfig) *Device {
	var storage persistence.Storage
	switch cfg.Type {
	case "file":
		slog.Info("Initializing local device with file persistence", "path", cfg.Path)
		storage = persistence.NewFileStorage(cfg.Path)
	case "mmap":
		slog.Info("Initializing local device with MMAP persistence", "path", cfg.Path)
		storage = persistence.NewMmapStorage(cfg.Path)
	case "sql":
		// Path is the DSN. The main app imports the sqlite3 driver.
		slog.Info("Initializing local device with SQL persistence", "driver", "sqlite3", "dsn", cfg.Path)
		storage = persistence.NewSQLStorage("sqlite3", cfg.Path)
	default:
		slog.Info("Initializing local device with memory storage (non-persistent)")
		storage = persistence.NewMemoryStorage()
	}

	m, err := storage.Load()
	if err != nil {
		slog.Error("Failed to load persistence data, starting with fresh memory", "err", err)
		slog.Warn("Falling back to MemoryStorage")
		storage = persistence.NewMemoryStorage()
		m, _ = storage.Load()
	}

	return New(m, storage)
}

// Read returns length bytes starting at address.
func (d *Device) Read(address uint16, length int) ([]byte, error) {
	return d.memory.Read(address, length)
}

// Write stores data at address and hands the range to the storage.
func (d *Device) Write(address uint16, data []byte) error {
	if err := d.memory.Write(address, data); err != nil {
		return err
	}
	d.storage.OnWrite(address, len(data))
	return nil
}

// Close saves and releases the storage.
func (d *Device) Close() error {
	if err := d.storage.Save(d.memory); err != nil {
		slog.Error("Failed to save local device", "err", err)
	}
	return d.storage.Close()
}
