// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

// Package util packages various utilities.
package util

import (
	"context"
	"log/slog"
)

// log/slog has no trace level of its own; we claim one below debug.
const (
	LogLevelTrace = slog.Level(-8)
)

// TraceLog sends trace-level logging to a log/slog.Logger.
func TraceLog(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LogLevelTrace, msg, args...)
}
