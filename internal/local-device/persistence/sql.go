// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ffutop/vitoconnect/internal/local-device/model"
)

// SQLStorage implements persistence using a SQL database.
// Only addresses that were ever written are stored, one row per byte.
type SQLStorage struct {
	driver string
	dsn    string
	db     *sql.DB
	memory *model.Memory
}

// NewSQLStorage creates a new SQLStorage.
// Note: The driver (e.g., sqlite3) must be imported in main.go
func NewSQLStorage(driver, dsn string) *SQLStorage {
	return &SQLStorage{
		driver: driver,
		dsn:    dsn,
	}
}

// Load connects to the DB and loads the data.
func (s *SQLStorage) Load() (*model.Memory, error) {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	s.db = db

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	m := model.NewMemory()
	s.memory = m

	rows, err := db.Query("SELECT address, value FROM device_memory")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to query memory: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr, val int
		if err := rows.Scan(&addr, &val); err != nil {
			continue
		}
		if addr < 0 || addr > model.MaxAddress {
			continue
		}
		m.Data[addr] = byte(val)
	}
	if err := rows.Err(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read memory: %w", err)
	}

	return m, nil
}

func (s *SQLStorage) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS device_memory (
		address INTEGER PRIMARY KEY,
		value INTEGER
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Save is a no-op; OnWrite keeps the table current.
func (s *SQLStorage) Save(m *model.Memory) error {
	return nil
}

// OnWrite upserts the changed bytes in one transaction.
func (s *SQLStorage) OnWrite(address uint16, length int) {
	if s.db == nil || s.memory == nil {
		return
	}

	var values []byte
	if err := s.memory.View(address, length, func(b []byte) { values = append(values, b...) }); err != nil {
		slog.Error("Failed to persist memory", "address", address, "err", err)
		return
	}

	if err := s.upsert(int(address), values); err != nil {
		slog.Error("Failed to persist memory", "address", address, "err", err)
	}
}

func (s *SQLStorage) upsert(address int, values []byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO device_memory (address, value) VALUES (?, ?) ON CONFLICT(address) DO UPDATE SET value=excluded.value")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, v := range values {
		if _, err := stmt.Exec(address+i, int(v)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}
