// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/arceos-hypervisor/axvisor-guestd/internal/faultguard"
	"github.com/arceos-hypervisor/axvisor-guestd/internal/handshake"
	"github.com/arceos-hypervisor/axvisor-guestd/internal/procmaps"
	"github.com/arceos-hypervisor/axvisor-guestd/pkg/catalog"
	"github.com/arceos-hypervisor/axvisor-guestd/pkg/hypercall"
)

const flagSkipProbe = "skip-probe"

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "register this process with the monitor",
	Long:  "probes the hypervisor, scans /proc/self/maps into the region catalog, and publishes the catalog to create an instance and its init process",
	RunE:  register,
}

func init() {
	pf := registerCmd.PersistentFlags()
	pf.Bool(flagSkipProbe, false, "skip the hypervisor probe (debug runs on bare metal)")

	if err := viper.BindPFlags(pf); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(registerCmd)
}

func register(_ *cobra.Command, _ []string) error {
	arena, err := catalog.NewArena(logger.With("module", "catalog"), unix.Getpagesize())
	if err != nil {
		return err
	}

	scanner := procmaps.NewScanner(logger.With("module", "procmaps"), arena, viper.GetString(flagMapsPath))

	orch := handshake.New(handshake.Config{
		Logger:    logger.With("module", "handshake"),
		Transport: hypercall.NewTransport(logger.With("module", "hypercall")),
		Catalog:   arena,
		Scan:      scanner.Scan,
		Guard:     faultguard.New(logger.With("module", "faultguard")),
		SkipProbe: viper.GetBool(flagSkipProbe),
	})

	return orch.Run()
}
