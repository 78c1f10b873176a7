// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

//go:build arm64

package hypercall

// trap executes HVC #0 with num in R0 and the arguments in R1 through R6,
// following the SMCCC-style convention AxVisor uses on aarch64; the host's
// result is returned in R0. Implemented in hypercall_arm64.s.
func trap(num, a0, a1, a2, a3, a4, a5 uint64) int64
