// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

// Package faultguard installs process-wide handlers for the hardware-fault
// signals the probe can raise when no hypervisor services the trap
// instruction. The guard is installed once per process and never
// reinstalled.
package faultguard

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Guard watches for SIGILL and SIGSEGV and diverts them to a callback
// instead of the runtime's default crash handling.
type Guard struct {
	logger    *slog.Logger
	ch        chan os.Signal
	installed bool
}

// New returns an uninstalled guard.
func New(logger *slog.Logger) *Guard {
	return &Guard{
		logger: logger,
		ch:     make(chan os.Signal, 1),
	}
}

// Install registers the process-wide handlers and starts a watcher that
// invokes onFault with the signal name when a guarded fault fires. A second
// call is a no-op: the guard covers the whole process for its whole
// lifetime.
func (g *Guard) Install(onFault func(sig string)) {
	if g.installed {
		return
	}

	g.installed = true

	signal.Notify(g.ch, syscall.SIGILL, syscall.SIGSEGV)

	go g.watch(onFault)

	g.logger.Debug("fault guard installed", "signals", "SIGILL,SIGSEGV")
}

func (g *Guard) watch(onFault func(sig string)) {
	sig := <-g.ch

	g.logger.Error("caught hardware fault signal", "signal", sig.String())
	onFault(sig.String())
}
