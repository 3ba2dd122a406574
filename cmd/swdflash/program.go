// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/cesanta/go-serial/serial"
	"github.com/spf13/cobra"

	"github.com/bbnote/swdprog"
)

var programCmd = &cobra.Command{
	Use:   "program",
	Short: "Run the command channel and flash any file the channel requests",
	Long: `Serve spec's line-oriented command channel over a serial port and
flash whatever HEX file each "FILE: <path>" request names, reporting the
result as one response line per request.

No GPIO backend is wired into this repository (see pin.go's GPIOPin
boundary): --sim runs against an in-process simulated Cortex-M target and
is, for now, the only backend this command can drive.`,
	RunE: runProgram,
}

func init() {
	rootCmd.AddCommand(programCmd)
	programCmd.Flags().StringP("port", "p", "", "Serial port the command channel is attached to")
	programCmd.Flags().UintP("baud", "b", 9600, "Command channel baud rate")
	programCmd.Flags().Bool("sim", false, "Drive a simulated target instead of real GPIO hardware")
	programCmd.Flags().String("sim-family", "CortexM4", "Simulated target family: CortexM0, CortexM3, or CortexM4")
	_ = programCmd.MarkFlagRequired("port")
}

func runProgram(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetString("port")
	baud, _ := cmd.Flags().GetUint("baud")
	sim, _ := cmd.Flags().GetBool("sim")
	simFamily, _ := cmd.Flags().GetString("sim-family")

	if !sim {
		return fmt.Errorf("no GPIO backend is wired into this build; pass --sim")
	}

	pins, err := newSimPins(simFamily)
	if err != nil {
		return err
	}

	oo := serial.OpenOptions{
		PortName:              port,
		BaudRate:              baud,
		DataBits:              8,
		ParityMode:            serial.PARITY_NONE,
		StopBits:              1,
		InterCharacterTimeout: 200,
		MinimumReadSize:       0,
	}
	conn, err := serial.Open(oo)
	if err != nil {
		return fmt.Errorf("opening command channel port %s: %w", port, err)
	}
	defer conn.Close()

	storage := swdprog.NewFileStorage()
	server := swdprog.NewCommandServer(conn, conn)

	if err := server.Announce(); err != nil {
		return err
	}

	logger.WithField("port", port).Info("command channel ready")

	handler := func(path string) swdprog.Kind {
		logger.WithField("file", path).Info("programming session starting")
		session := swdprog.NewSession(pins)
		return session.Program(storage, path)
	}

	return server.Serve(handler)
}

// newSimPins resolves --sim-family into a ready SimTarget usable as a
// PinInterface.
func newSimPins(family string) (*swdprog.SimTarget, error) {
	var f swdprog.McuFamily
	switch family {
	case "CortexM0":
		f = swdprog.FamilyCortexM0
	case "CortexM3":
		f = swdprog.FamilyCortexM3
	case "CortexM4":
		f = swdprog.FamilyCortexM4
	default:
		return nil, fmt.Errorf("unknown --sim-family %q", family)
	}
	return swdprog.NewSimTarget(f, 0x08000000, 512*1024), nil
}
