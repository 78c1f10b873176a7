// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

// Package catalog holds the memory-region catalog shared with the monitor:
// fixed-layout Region records packed into anonymous pages, addressed through
// a directory of raw page pointers that the monitor dereferences directly.
package catalog

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/unix"
)

const initialDirCap = 4

// ptrSize is the size of one directory entry (a native pointer).
const ptrSize = int(unsafe.Sizeof(uintptr(0)))

// Summary is the triple handed to the monitor during instance creation. The
// monitor reads DirectoryBase as an array of Pages raw page pointers; each
// page holds consecutive Region records, the last one only as many as Total
// accounts for.
type Summary struct {
	Total         uint64
	DirectoryBase uintptr
	Pages         uint64
}

// Arena packs Region records into anonymous read/write pages. Pages are
// owned by the arena and live until Cleanup; a published page address never
// changes, even though the directory array holding the addresses may be
// relocated as it grows. Not safe for concurrent appends.
type Arena struct {
	logger   *slog.Logger
	pageSize int
	perPage  int

	pages  [][]byte // mmap'd pages, same order as the directory
	dir    []byte   // mmap'd array of page base addresses
	dirCap int      // directory capacity in entries

	offset int    // record slot within the active (last) page
	total  uint64 // records across all pages
}

// NewArena returns an empty arena cutting pages of the given size. The page
// size must hold at least one record.
func NewArena(logger *slog.Logger, pageSize int) (*Arena, error) {
	if pageSize < RegionSize {
		return nil, fmt.Errorf("page size %d cannot hold a %d-byte region record", pageSize, RegionSize)
	}

	return &Arena{
		logger:   logger,
		pageSize: pageSize,
		perPage:  pageSize / RegionSize,
	}, nil
}

// PerPage returns how many records fit in one page.
func (a *Arena) PerPage() int {
	return a.perPage
}

// dirEntries views the directory storage as pointer-sized entries.
func (a *Arena) dirEntries() []uintptr {
	if a.dir == nil {
		return nil
	}

	return unsafe.Slice((*uintptr)(unsafe.Pointer(&a.dir[0])), a.dirCap)
}

// growDirectory doubles the directory storage (or creates it with the
// initial capacity), copying existing entries. Old pages keep their
// addresses; only the directory array moves.
func (a *Arena) growDirectory() error {
	newCap := initialDirCap
	if a.dirCap > 0 {
		newCap = a.dirCap * 2
	}

	nd, err := unix.Mmap(-1, 0, newCap*ptrSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("growing page directory to %d entries: %w", newCap, err)
	}

	copy(nd, a.dir)

	if a.dir != nil {
		if err := unix.Munmap(a.dir); err != nil {
			return fmt.Errorf("unmapping old page directory: %w", err)
		}
	}

	a.dir = nd
	a.dirCap = newCap

	return nil
}

// EnsureCapacity makes sure the active page has room for one more record,
// mapping a fresh anonymous page and recording its base address in the
// directory when it does not. Mapping or directory growth failure leaves the
// already-published pages intact.
func (a *Arena) EnsureCapacity() error {
	if len(a.pages) > 0 && a.offset < a.perPage {
		return nil
	}

	page, err := unix.Mmap(-1, 0, a.pageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return fmt.Errorf("mapping catalog page: %w", err)
	}

	if len(a.pages) == a.dirCap {
		if err := a.growDirectory(); err != nil {
			_ = unix.Munmap(page)

			return err
		}
	}

	a.dirEntries()[len(a.pages)] = uintptr(unsafe.Pointer(&page[0]))
	a.pages = append(a.pages, page)
	a.offset = 0

	a.logger.Debug("mapped catalog page", "page", len(a.pages)-1, "base", fmt.Sprintf("%#x", uintptr(unsafe.Pointer(&page[0]))))

	return nil
}

// Append copies one record into the active page and advances the cursor.
func (a *Arena) Append(r *Region) error {
	if err := a.EnsureCapacity(); err != nil {
		return err
	}

	raw := (*[RegionSize]byte)(unsafe.Pointer(r))
	page := a.pages[len(a.pages)-1]
	copy(page[a.offset*RegionSize:], raw[:])

	a.offset++
	a.total++

	return nil
}

// Summary reports the catalog shape handed to the monitor. O(1), read-only.
func (a *Arena) Summary() Summary {
	s := Summary{
		Total: a.total,
		Pages: uint64(len(a.pages)),
	}

	if a.dir != nil {
		s.DirectoryBase = uintptr(unsafe.Pointer(&a.dir[0]))
	}

	return s
}

// Records returns a typed view of the valid records in one page, reading
// them back from the raw page memory. The view is invalidated by Cleanup.
func (a *Arena) Records(page int) []Region {
	if page < 0 || page >= len(a.pages) {
		return nil
	}

	n := a.perPage
	if page == len(a.pages)-1 {
		n = a.offset
	}

	if n == 0 {
		return nil
	}

	return unsafe.Slice((*Region)(unsafe.Pointer(&a.pages[page][0])), n)
}

// Cleanup unmaps every page and the directory and resets the arena to the
// empty state. Safe to call repeatedly.
func (a *Arena) Cleanup() error {
	for i, page := range a.pages {
		if err := unix.Munmap(page); err != nil {
			return fmt.Errorf("unmapping catalog page %d: %w", i, err)
		}
	}

	if a.dir != nil {
		if err := unix.Munmap(a.dir); err != nil {
			return fmt.Errorf("unmapping page directory: %w", err)
		}
	}

	a.pages = nil
	a.dir = nil
	a.dirCap = 0
	a.offset = 0
	a.total = 0

	return nil
}
