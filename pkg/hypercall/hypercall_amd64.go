// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

//go:build amd64

package hypercall

// trap executes VMCALL with num in AX and the arguments in the System V
// integer argument registers (DI, SI, DX, CX, R8, R9); the host's result is
// returned in AX. Implemented in hypercall_amd64.s.
func trap(num, a0, a1, a2, a3, a4, a5 uint64) int64
