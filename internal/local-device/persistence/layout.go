// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"os"

	"github.com/ffutop/vitoconnect/internal/local-device/model"
)

// totalSize is the size of a memory image on disk: one byte per address.
// FileStorage and MmapStorage share the layout and can open each other's
// images.
const totalSize = model.Size

// mapBytesToMemory constructs a Memory backed by the provided data slice.
// Writes to the memory land in data directly.
func mapBytesToMemory(data []byte) *model.Memory {
	return &model.Memory{Data: data[:totalSize:totalSize]}
}

// openImage opens or creates the image at path and sizes it to totalSize.
func openImage(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize image %s: %w", path, err)
		}
	}
	return f, nil
}

// clampRange limits [offset, offset+length) to the image.
func clampRange(offset, length int) (int, int) {
	offset = max(0, min(offset, totalSize))
	end := max(offset, min(offset+length, totalSize))
	return offset, end
}
