// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

// Package handshake sequences the guest/monitor negotiation: probe the
// hypervisor, scan the process's mappings into the catalog, publish the
// catalog, and ask for the instance and its init process to be created.
package handshake

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/arceos-hypervisor/axvisor-guestd/pkg/catalog"
	"github.com/arceos-hypervisor/axvisor-guestd/pkg/hypercall"
)

// State tracks where in the negotiation the orchestrator is.
type State int

// Handshake states, in roughly the order they are reached.
const (
	StateInit State = iota
	StateProbeGuest
	StateProbeHost
	StateScanning
	StatePublishing
	StateInstanceCreated
	StateInstancePending
	StateFailed
	StateTerminated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateProbeGuest:
		return "ProbeGuest"
	case StateProbeHost:
		return "ProbeHost"
	case StateScanning:
		return "Scanning"
	case StatePublishing:
		return "Publishing"
	case StateInstanceCreated:
		return "InstanceCreated"
	case StateInstancePending:
		return "InstancePending"
	case StateFailed:
		return "Failed"
	case StateTerminated:
		return "Terminated"
	}

	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrHostMode means the probe hypercall was not serviced: this process
	// is not running under the expected hypervisor.
	ErrHostMode = errors.New("hypercall not serviced, running in host mode")
	// ErrInstancePending means the monitor deferred instance creation.
	ErrInstancePending = errors.New("monitor deferred instance creation")
	// ErrInstanceRejected means the monitor refused instance creation.
	ErrInstanceRejected = errors.New("monitor rejected instance creation")
)

// Transport issues hypercalls. *hypercall.Transport satisfies it; tests
// substitute a mock host.
type Transport interface {
	Call(num uint64, args ...uint64) int64
}

// Catalog is the published region catalog. *catalog.Arena satisfies it.
type Catalog interface {
	Summary() catalog.Summary
	Cleanup() error
}

// Guard installs the process-wide fault handlers.
type Guard interface {
	Install(onFault func(sig string))
}

// Config carries the orchestrator's collaborators.
type Config struct {
	Logger    *slog.Logger
	Transport Transport
	Catalog   Catalog
	// Scan populates the catalog from the process's mapping table.
	Scan func() error
	// Guard may be nil when fault guarding is handled elsewhere.
	Guard Guard
	// PID defaults to the current process.
	PID int
	// SkipProbe bypasses the hypervisor probe for debugging on bare metal.
	SkipProbe bool
}

// Orchestrator drives the handshake state machine. Single-threaded: every
// hypercall blocks until the host resumes the guest.
type Orchestrator struct {
	logger    *slog.Logger
	transport Transport
	catalog   Catalog
	scan      func() error
	guard     Guard
	pid       int
	skipProbe bool

	state State

	// hold parks the goroutine on the pending/rejected outcomes. The
	// original agent busy-spun here; blocking on a channel keeps the "do not
	// proceed" semantics without burning a CPU.
	hold func(State)
	exit func(code int)
}

// New returns an orchestrator in the Init state.
func New(cfg Config) *Orchestrator {
	pid := cfg.PID
	if pid == 0 {
		pid = os.Getpid()
	}

	return &Orchestrator{
		logger:    cfg.Logger,
		transport: cfg.Transport,
		catalog:   cfg.Catalog,
		scan:      cfg.Scan,
		guard:     cfg.Guard,
		pid:       pid,
		skipProbe: cfg.SkipProbe,
		state:     StateInit,
		hold: func(State) {
			select {}
		},
		exit: os.Exit,
	}
}

// State returns the current handshake state.
func (o *Orchestrator) State() State {
	return o.state
}

// onFault handles a guarded hardware fault exactly like a failed probe:
// report, flip to host mode, terminate non-zero.
func (o *Orchestrator) onFault(sig string) {
	o.state = StateProbeHost
	o.logger.Error("hardware fault during handshake, this is not a guest", "signal", sig)
	o.exit(1)
}

// Run drives the handshake to a terminal outcome. It returns nil only after
// the instance was created and the catalog cleaned up; ErrHostMode when the
// probe fails (the caller should exit non-zero); and the pending/rejected
// errors only if the hold hook ever returns, which the default hook never
// does.
func (o *Orchestrator) Run() error {
	if o.guard != nil {
		o.guard.Install(o.onFault)
	}

	if err := o.probe(); err != nil {
		return err
	}

	o.state = StateScanning

	if err := o.scan(); err != nil {
		return fmt.Errorf("scanning memory mappings: %w", err)
	}

	o.state = StatePublishing

	return o.publish()
}

func (o *Orchestrator) probe() error {
	if o.skipProbe {
		o.logger.Warn("skipping hypervisor probe")
		o.state = StateProbeGuest

		return nil
	}

	ret := o.transport.Call(hypercall.DebugProbe)
	if ret != int64(hypercall.DebugProbe) {
		o.state = StateProbeHost
		o.logger.Error("probe hypercall not serviced", "ret", ret)

		return ErrHostMode
	}

	o.state = StateProbeGuest
	o.logger.Info("probe hypercall serviced, guest mode confirmed")

	return nil
}

func (o *Orchestrator) publish() error {
	s := o.catalog.Summary()

	o.logger.Info("publishing region catalog",
		"pid", o.pid, "records", s.Total, "directory", fmt.Sprintf("%#x", s.DirectoryBase), "pages", s.Pages)

	res := o.transport.Call(hypercall.CreateInstance,
		uint64(o.pid), s.Total, uint64(s.DirectoryBase), s.Pages)

	switch {
	case res == 0:
		o.state = StateInstanceCreated
		o.logger.Info("instance created")

		// Secondary call: reported only, never fatal to the handshake.
		if ret := o.transport.Call(hypercall.CreateInitProcess, uint64(o.pid), 0); ret == 0 {
			o.logger.Info("init process created")
		} else {
			o.logger.Error("init process creation failed", "ret", ret)
		}

		if err := o.catalog.Cleanup(); err != nil {
			return fmt.Errorf("cleaning up region catalog: %w", err)
		}

		o.state = StateTerminated

		return nil

	case res > 0:
		// The monitor needs more time or resources. Do not proceed: the
		// published pages must stay valid until the host resumes us.
		o.state = StateInstancePending
		o.logger.Warn("monitor deferred instance creation, holding", "ret", res)
		o.hold(o.state)

		return ErrInstancePending

	default:
		o.state = StateFailed
		o.logger.Error("monitor rejected instance creation, holding", "ret", res)
		o.hold(o.state)

		return ErrInstanceRejected
	}
}
