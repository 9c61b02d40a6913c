// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReadWrite(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Write(0x0800, []byte{0xD2, 0x00}))

	got, err := m.Read(0x0800, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xD2, 0x00}, got)

	// returned data is a copy
	got[0] = 0xFF
	again, _ := m.Read(0x0800, 1)
	assert.Equal(t, []byte{0xD2}, again)
}

func TestMemoryRange(t *testing.T) {
	m := NewMemory()

	_, err := m.Read(0xFFFF, 1)
	assert.NoError(t, err)
	_, err = m.Read(0xFFFF, 2)
	assert.ErrorIs(t, err, ErrAddressRange)
	assert.ErrorIs(t, m.Write(0xFFFE, []byte{1, 2, 3}), ErrAddressRange)
	_, err = m.Read(0x0000, 0)
	assert.Error(t, err)
	assert.Error(t, m.Write(0x0000, nil))
}

func TestMemoryView(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Write(0x0010, []byte{1, 2}))

	var seen []byte
	require.NoError(t, m.View(0x0010, 2, func(b []byte) { seen = append(seen, b...) }))
	assert.Equal(t, []byte{1, 2}, seen)
	assert.ErrorIs(t, m.View(0xFFFF, 4, func([]byte) {}), ErrAddressRange)
}
