// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bbnote/swdprog"
)

var hexinfoCmd = &cobra.Command{
	Use:   "hexinfo <file.hex>",
	Short: "Validate an Intel HEX image and report its write units without touching a target",
	Args:  cobra.ExactArgs(1),
	RunE:  runHexinfo,
}

func init() {
	rootCmd.AddCommand(hexinfoCmd)
	hexinfoCmd.Flags().Uint32("unit-size", 512, "Write unit size in bytes, matching the flash program granularity this image targets")
}

func runHexinfo(cmd *cobra.Command, args []string) error {
	unitSize, _ := cmd.Flags().GetUint32("unit-size")

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	var units, total int
	asm := swdprog.NewAssembler(unitSize)
	sink := func(addr uint32, data []byte) error {
		units++
		total += len(data)
		fmt.Printf("unit %3d: base=0x%08X len=%d\n", units, addr, len(data))
		return nil
	}

	if err := asm.Process(f, sink); err != nil {
		return err
	}

	fmt.Printf("%d write unit(s), %d byte(s) total\n", units, total)
	return nil
}
