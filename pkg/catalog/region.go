// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

package catalog

import "strings"

// Region flag bits. The monitor interprets these, so the values are part of
// the wire contract.
const (
	FlagRead   uint64 = 1 << 0
	FlagWrite  uint64 = 1 << 1
	FlagExec   uint64 = 1 << 2
	FlagDevice uint64 = 1 << 4
)

// Region describes one memory mapping of the guest process. The monitor
// parses it as raw memory, so the layout is frozen: 312 bytes, 8-byte
// aligned, fields in exactly this order. Text fields are null-terminated.
type Region struct {
	Start       uint64
	End         uint64
	Permissions [8]byte
	Offset      uint64
	Device      [8]byte
	Inode       uint64
	Pathname    [256]byte
	Flags       uint64
}

// RegionSize is the frozen on-wire size of one Region.
const RegionSize = 312

// PermFlags derives the flag bitmask from a permission token and a pathname.
// Bits 0..2 track the r/w/x characters, bit 4 marks device-backed mappings.
// The derivation looks at the full source strings, not the truncated copies
// stored in the record.
func PermFlags(perms, pathname string) uint64 {
	var f uint64

	if strings.ContainsRune(perms, 'r') {
		f |= FlagRead
	}

	if strings.ContainsRune(perms, 'w') {
		f |= FlagWrite
	}

	if strings.ContainsRune(perms, 'x') {
		f |= FlagExec
	}

	if strings.HasPrefix(pathname, "/dev/") {
		f |= FlagDevice
	}

	return f
}

// setText copies up to max characters of s into dst and zero-fills the
// rest, so the copy is always null-terminated and the trailing bytes are
// deterministic.
func setText(dst []byte, s string, max int) {
	n := copy(dst[:max], s)

	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

// SetPermissions stores the permission token, truncated to 4 characters.
func (r *Region) SetPermissions(s string) {
	setText(r.Permissions[:], s, 4)
}

// SetDevice stores the major:minor device token, truncated to 5 characters.
func (r *Region) SetDevice(s string) {
	setText(r.Device[:], s, 5)
}

// SetPathname stores the mapped path or pseudo-name, truncated to 255
// characters.
func (r *Region) SetPathname(s string) {
	setText(r.Pathname[:], s, 255)
}

func textString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}

	return string(b)
}

// PermissionsString returns the stored permission token.
func (r *Region) PermissionsString() string {
	return textString(r.Permissions[:])
}

// DeviceString returns the stored device token.
func (r *Region) DeviceString() string {
	return textString(r.Device[:])
}

// PathnameString returns the stored pathname.
func (r *Region) PathnameString() string {
	return textString(r.Pathname[:])
}
