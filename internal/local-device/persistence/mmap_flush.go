// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package persistence

// flushRange syncs the whole mapping; mmap-go has no ranged flush.
func (ms *MmapStorage) flushRange(offset, length int) error {
	if ms.data == nil {
		return errNotMapped
	}
	if start, end := clampRange(offset, length); start == end {
		return nil
	}
	return ms.data.Flush()
}
