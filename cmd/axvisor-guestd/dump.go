// SPDX-FileCopyrightText: Copyright (c) 2025 the AxVisor contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/arceos-hypervisor/axvisor-guestd/internal/procmaps"
	"github.com/arceos-hypervisor/axvisor-guestd/pkg/catalog"
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "scan the mapping table and print the catalog",
	Long:  "builds the region catalog exactly as register would, then prints every page and record read back from the raw pages; needs no hypervisor",
	RunE:  dump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)
}

func dump(_ *cobra.Command, _ []string) error {
	arena, err := catalog.NewArena(logger.With("module", "catalog"), unix.Getpagesize())
	if err != nil {
		return err
	}

	defer func() {
		if err := arena.Cleanup(); err != nil {
			logger.Warn("failed to clean up catalog", "err", err)
		}
	}()

	scanner := procmaps.NewScanner(logger.With("module", "procmaps"), arena, viper.GetString(flagMapsPath))

	if err := scanner.Scan(); err != nil {
		return err
	}

	s := arena.Summary()

	fmt.Fprintf(os.Stdout, "catalog: %d records in %d pages, directory at %#x\n", s.Total, s.Pages, s.DirectoryBase)

	n := 0

	for page := range int(s.Pages) {
		recs := arena.Records(page)

		fmt.Fprintf(os.Stdout, "── page %d (%d records)\n", page, len(recs))

		for i := range recs {
			r := &recs[i]

			fmt.Fprintf(os.Stdout, "[%d] %016x-%016x %-4s %s flags=%#x\n",
				n, r.Start, r.End, r.PermissionsString(), r.PathnameString(), r.Flags)

			n++
		}
	}

	return nil
}
