// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

// Package procmaps reads the process's own memory-mapping table and turns
// each entry into a catalog region record.
package procmaps

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/arceos-hypervisor/axvisor-guestd/internal/util"
	"github.com/arceos-hypervisor/axvisor-guestd/pkg/catalog"
)

// DefaultPath is where the kernel exposes the calling process's mappings.
const DefaultPath = "/proc/self/maps"

// Sink receives decoded region records. *catalog.Arena satisfies it.
type Sink interface {
	EnsureCapacity() error
	Append(*catalog.Region) error
}

// Scanner decodes the textual mapping table into region records.
type Scanner struct {
	logger *slog.Logger
	sink   Sink
	path   string
}

// NewScanner returns a scanner appending to sink. An empty path selects
// DefaultPath.
func NewScanner(logger *slog.Logger, sink Sink, path string) *Scanner {
	if path == "" {
		path = DefaultPath
	}

	return &Scanner{
		logger: logger,
		sink:   sink,
		path:   path,
	}
}

// Scan opens the mapping table and appends one record per well-formed line.
// Failing to open the table is an error; a malformed line is skipped and the
// scan continues.
func (s *Scanner) Scan() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", s.path, err)
	}

	defer f.Close() //nolint:errcheck

	return s.scan(f)
}

func (s *Scanner) scan(r io.Reader) error {
	// The sink holds a page before the first line so the published catalog
	// is never directory-less.
	if err := s.sink.EnsureCapacity(); err != nil {
		return err
	}

	n := 0
	sc := bufio.NewScanner(r)

	for sc.Scan() {
		line := sc.Text()

		reg, ok := decodeLine(line)
		if !ok {
			s.logger.Debug("skipping unparseable maps line", "line", line)

			continue
		}

		if err := s.sink.Append(reg); err != nil {
			return err
		}

		util.TraceLog(s.logger, "decoded region",
			"start", fmt.Sprintf("%#x", reg.Start), "end", fmt.Sprintf("%#x", reg.End),
			"perms", reg.PermissionsString(), "path", reg.PathnameString())

		n++
	}

	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", s.path, err)
	}

	s.logger.Info("scanned memory mappings", "records", n)

	return nil
}

// nextField returns the whitespace-delimited token starting at or after pos
// and the index just past it.
func nextField(line string, pos int) (string, int) {
	for pos < len(line) && (line[pos] == ' ' || line[pos] == '\t') {
		pos++
	}

	start := pos
	for pos < len(line) && line[pos] != ' ' && line[pos] != '\t' {
		pos++
	}

	return line[start:pos], pos
}

// decodeLine parses one line of the grammar
//
//	HEXSTART-HEXEND PERMS OFFSET DEVICE INODE [PATHNAME]
//
// and returns false for anything that does not match the first five fields.
// The pathname is the remainder of the line with surrounding whitespace
// trimmed, so paths containing spaces survive.
func decodeLine(line string) (*catalog.Region, bool) {
	pos := 0

	addrs, pos := nextField(line, pos)
	perms, pos := nextField(line, pos)
	offset, pos := nextField(line, pos)
	device, pos := nextField(line, pos)
	inode, pos := nextField(line, pos)
	pathname := strings.TrimSpace(line[pos:])

	if inode == "" {
		return nil, false
	}

	startStr, endStr, found := strings.Cut(addrs, "-")
	if !found {
		return nil, false
	}

	start, err := strconv.ParseUint(startStr, 16, 64)
	if err != nil {
		return nil, false
	}

	end, err := strconv.ParseUint(endStr, 16, 64)
	if err != nil {
		return nil, false
	}

	off, err := strconv.ParseUint(offset, 16, 64)
	if err != nil {
		return nil, false
	}

	// The table prints the inode as a 32-bit decimal; the record widens it
	// to 64 bits.
	ino, err := strconv.ParseUint(inode, 10, 32)
	if err != nil {
		return nil, false
	}

	reg := &catalog.Region{
		Start:  start,
		End:    end,
		Offset: off,
		Inode:  ino,
		Flags:  catalog.PermFlags(perms, pathname),
	}

	reg.SetPermissions(perms)
	reg.SetDevice(device)
	reg.SetPathname(pathname)

	return reg, true
}
