// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

// Package hypercall implements the guest side of the AxVisor hypercall ABI.
//
// A hypercall is a single trapping instruction (VMCALL on amd64, HVC #0 on
// arm64): the call number goes into the accumulator register, up to six
// integer arguments into the native argument registers, and the host's
// signed result comes back in the accumulator. The call blocks the guest
// until the host resumes it.
package hypercall

import (
	"fmt"
	"log/slog"
)

// Call numbers understood by the monitor. The values are the wire protocol
// and must never be renumbered.
const (
	// DebugProbe echoes its own call number when serviced; anything else
	// means no monitor is listening.
	DebugProbe uint64 = 0xc0000000
	// CreateInstance publishes the region catalog:
	// (pid, total records, directory base, page count).
	CreateInstance uint64 = 0xc0000001
	// CreateInitProcess asks the monitor to spawn the init process for a
	// registered instance: (pid, 0).
	CreateInitProcess uint64 = 0xc0000002
	// Mmap and Clone are reserved by the protocol table; the registration
	// sequence does not issue them.
	Mmap  uint64 = 0xc0000003
	Clone uint64 = 0xc0000004
)

// maxArgs is fixed by the register convention.
const maxArgs = 6

// Transport issues hypercalls. It is a pure primitive: no retries, no
// interpretation of results beyond returning them.
type Transport struct {
	logger *slog.Logger
}

// NewTransport returns a transport logging through the given logger.
func NewTransport(logger *slog.Logger) *Transport {
	return &Transport{logger: logger}
}

// Call traps into the host with the given call number and up to six
// arguments, returning the host's signed result. The host may read or write
// any guest memory reachable through pointer arguments, so callers must not
// assume anything about memory across the call. Panics if more than six
// arguments are passed.
func (t *Transport) Call(num uint64, args ...uint64) int64 {
	if len(args) > maxArgs {
		panic(fmt.Sprintf("hypercall: %d arguments passed, ABI carries at most %d", len(args), maxArgs))
	}

	var a [maxArgs]uint64

	copy(a[:], args)

	ret := trap(num, a[0], a[1], a[2], a[3], a[4], a[5])

	t.logger.Debug("hypercall", "num", fmt.Sprintf("%#x", num), "argc", len(args), "ret", ret)

	return ret
}
