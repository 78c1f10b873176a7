// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

package procmaps

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/arceos-hypervisor/axvisor-guestd/pkg/catalog"
)

// recordingSink collects appended records in plain slices.
type recordingSink struct {
	ensured int
	records []catalog.Region
}

func (s *recordingSink) EnsureCapacity() error {
	s.ensured++

	return nil
}

func (s *recordingSink) Append(r *catalog.Region) error {
	s.records = append(s.records, *r)

	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scanString(t *testing.T, input string) *recordingSink {
	t.Helper()

	sink := &recordingSink{}
	s := NewScanner(testLogger(), sink, "")

	if err := s.scan(strings.NewReader(input)); err != nil {
		t.Fatalf("scan: %v", err)
	}

	return sink
}

func TestScanSingleLine(t *testing.T) {
	sink := scanString(t, "00400000-00401000 r-xp 00000000 08:01 123456 /usr/bin/example\n")

	if len(sink.records) != 1 {
		t.Fatalf("got %d records, want 1", len(sink.records))
	}

	r := sink.records[0]

	if r.Start != 0x00400000 || r.End != 0x00401000 {
		t.Errorf("range = %#x-%#x, want 0x400000-0x401000", r.Start, r.End)
	}

	if r.Flags != catalog.FlagRead|catalog.FlagExec {
		t.Errorf("flags = %#b, want %#b", r.Flags, catalog.FlagRead|catalog.FlagExec)
	}

	if got := r.PathnameString(); got != "/usr/bin/example" {
		t.Errorf("pathname = %q, want %q", got, "/usr/bin/example")
	}

	if got := r.PermissionsString(); got != "r-xp" {
		t.Errorf("permissions = %q, want %q", got, "r-xp")
	}

	if got := r.DeviceString(); got != "08:01" {
		t.Errorf("device = %q, want %q", got, "08:01")
	}

	if r.Offset != 0 || r.Inode != 123456 {
		t.Errorf("offset/inode = %d/%d, want 0/123456", r.Offset, r.Inode)
	}
}

func TestScanPrimesSink(t *testing.T) {
	sink := scanString(t, "")

	if sink.ensured != 1 {
		t.Fatalf("EnsureCapacity called %d times before scan, want 1", sink.ensured)
	}

	if len(sink.records) != 0 {
		t.Fatalf("empty table produced %d records", len(sink.records))
	}
}

func TestScanTable(t *testing.T) {
	input := strings.Join([]string{
		"560a1000-560a2000 r--p 00000000 fe:02 9182 /usr/lib/ld-linux-x86-64.so.2",
		"garbage line",
		"7f0000000000-7f0000021000 rw-p 00000000 00:00 0",
		"7ffc0000-7ffd0000 rw-p 00000000 00:00 0                          [stack]",
		"deadbeef-not-hex r--p 00000000 00:00 0",
		"10000000-10001000 rw-s 1a000000 103:255 77 /dev/dri/card0",
		"20000000-20001000 r--p 00000000 08:01 42 /opt/my app/data.bin",
		"",
	}, "\n")

	sink := scanString(t, input)

	if len(sink.records) != 5 {
		t.Fatalf("got %d records, want 5", len(sink.records))
	}

	tests := []struct {
		idx   int
		path  string
		flags uint64
	}{
		{0, "/usr/lib/ld-linux-x86-64.so.2", catalog.FlagRead},
		{1, "", catalog.FlagRead | catalog.FlagWrite},
		{2, "[stack]", catalog.FlagRead | catalog.FlagWrite},
		{3, "/dev/dri/card0", catalog.FlagRead | catalog.FlagWrite | catalog.FlagDevice},
		{4, "/opt/my app/data.bin", catalog.FlagRead},
	}

	for _, tt := range tests {
		r := sink.records[tt.idx]

		if got := r.PathnameString(); got != tt.path {
			t.Errorf("record %d pathname = %q, want %q", tt.idx, got, tt.path)
		}

		if r.Flags != tt.flags {
			t.Errorf("record %d flags = %#b, want %#b", tt.idx, r.Flags, tt.flags)
		}
	}

	// The device token wider than 5 chars is stored truncated, but parsing
	// still succeeded.
	if got := sink.records[3].DeviceString(); got != "103:2" {
		t.Errorf("device = %q, want %q", got, "103:2")
	}
}

func TestScanMissingFile(t *testing.T) {
	s := NewScanner(testLogger(), &recordingSink{}, "/nonexistent/maps")

	if err := s.Scan(); err == nil {
		t.Fatal("expected error for missing maps file")
	}
}

func TestScanSelfMaps(t *testing.T) {
	// The real table of the test process: must open, must yield at least one
	// record (a running process always has mappings).
	sink := &recordingSink{}
	s := NewScanner(testLogger(), sink, "")

	if err := s.Scan(); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if len(sink.records) == 0 {
		t.Fatal("scanning our own maps produced no records")
	}
}
