// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

// Package main is the guest-side registration agent for AxVisor.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/arceos-hypervisor/axvisor-guestd/internal/util"
	"github.com/arceos-hypervisor/axvisor-guestd/internal/version"
)

const (
	flagLogLevel = "log-level"
	flagMapsPath = "maps-path"
)

var rootCmd = &cobra.Command{
	Use:               "axvisor-guestd",
	Short:             "guest agent that registers this process with the AxVisor monitor",
	Long:              "axvisor-guestd introspects its own address space, builds the region catalog and hands it to the AxVisor monitor over hypercalls",
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var logger *slog.Logger

func parseLevel(s string) (slog.Level, error) {
	// slog does not support trace level logging by default, but is flexible
	if strings.ToUpper(s) == "TRACE" {
		return util.LogLevelTrace, nil
	}

	var level slog.Level

	err := level.UnmarshalText([]byte(s))

	return level, err
}

func setup(cmd *cobra.Command, _ []string) error {
	level, err := parseLevel(viper.GetString(flagLogLevel))
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	logOpts := &slog.HandlerOptions{
		Level: level,
	}

	logger = slog.New(slog.NewTextHandler(os.Stdout, logOpts)).With("command", cmd.Name())

	logger.Info(version.Name, "version", version.Tag, "sha", version.SHA)

	return nil
}

func init() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(`-`, `_`))
	viper.SetEnvPrefix("guestd")

	pf := rootCmd.PersistentFlags()
	pf.String(flagLogLevel, "info", "log level (error, warning, info, debug, trace)")
	pf.String(flagMapsPath, "", "memory-mapping table to scan (defaults to /proc/self/maps)")

	if err := viper.BindPFlags(pf); err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
