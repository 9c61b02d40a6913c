// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package localdevice

import (
	"path/filepath"
	"testing"

	"github.com/ffutop/vitoconnect/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceMemory(t *testing.T) {
	d := Open(config.PersistenceConfig{Type: "memory"})
	defer d.Close()

	require.NoError(t, d.Write(0x0800, []byte{0xD2, 0x00}))
	got, err := d.Read(0x0800, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD2, 0x00}, got)

	_, err = d.Read(0xFFFF, 2)
	assert.ErrorIs(t, err, ErrAddressRange)
	assert.ErrorIs(t, d.Write(0xFFFF, []byte{1, 2}), ErrAddressRange)
}

func TestDevicePersists(t *testing.T) {
	for _, typ := range []string{"file", "mmap"} {
		t.Run(typ, func(t *testing.T) {
			cfg := config.PersistenceConfig{Type: typ, Path: filepath.Join(t.TempDir(), "device.bin")}

			d := Open(cfg)
			require.NoError(t, d.Write(0x2323, []byte{0x02}))
			require.NoError(t, d.Close())

			d = Open(cfg)
			defer d.Close()
			got, err := d.Read(0x2323, 1)
			require.NoError(t, err)
			assert.Equal(t, []byte{0x02}, got)
		})
	}
}

func TestDeviceFallsBackToMemory(t *testing.T) {
	d := Open(config.PersistenceConfig{Type: "file", Path: filepath.Join(t.TempDir(), "missing", "device.bin")})
	defer d.Close()

	require.NoError(t, d.Write(0x0001, []byte{0x01}))
	got, err := d.Read(0x0001, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, got)
}
