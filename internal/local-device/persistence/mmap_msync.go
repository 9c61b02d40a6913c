// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

//go:build linux || darwin || freebsd || netbsd || openbsd

package persistence

import (
	"os"

	"golang.org/x/sys/unix"
)

// flushRange msyncs the pages covering [offset, offset+length). msync needs
// a page aligned start; the mapping itself starts on a page boundary.
func (ms *MmapStorage) flushRange(offset, length int) error {
	if ms.data == nil {
		return errNotMapped
	}
	start, end := clampRange(offset, length)
	if start == end {
		return nil
	}
	start &^= os.Getpagesize() - 1
	return unix.Msync(ms.data[start:end], unix.MS_SYNC)
}
