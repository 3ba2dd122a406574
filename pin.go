// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import "time"

// Level is the logical state of a digital pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// Direction is the runtime-configurable direction of the bidirectional IO
// pin.
type Direction int

const (
	DirOutput Direction = iota
	DirInput
)

// GPIOPin is the single-line hardware boundary this module reaches down
// to; it is deliberately minimal, since GPIO/SPI hardware abstraction is
// out of scope for this repository. A real board wires a concrete
// implementation in; SimTarget stands in for one in tests.
type GPIOPin interface {
	SetLevel(l Level)
	Level() Level
	SetDirection(d Direction)
}

// PinInterface is the operation set component B (the SWD line engine)
// drives. PinDriver is the production implementation; SimTarget implements
// it directly for tests, standing in for both the pin driver and the
// target it is wired to.
type PinInterface interface {
	SetClk(l Level)
	SetIO(l Level)
	ReadIO() Level
	SetIODir(d Direction)
	SetRst(l Level)
	Tick()
}

// PinDriver owns the three GPIO pins exclusively for the duration of a
// programming session and exposes them through the half-cycle-clocked API
// the line engine expects. No other component accesses these pins.
type PinDriver struct {
	clk, io, rst GPIOPin
	dir          Direction
	halfCycle    time.Duration
}

// NewPinDriver wires up a pin driver at a conservative default speed
// (100 kHz); call SetSpeed to calibrate.
func NewPinDriver(clk, io, rst GPIOPin) *PinDriver {
	d := &PinDriver{clk: clk, io: io, rst: rst, dir: DirOutput}
	d.io.SetDirection(DirOutput)
	d.SetSpeed(100)
	return d
}

func (d *PinDriver) SetClk(l Level) {
	d.clk.SetLevel(l)
}

func (d *PinDriver) SetIO(l Level) {
	if d.dir != DirOutput {
		d.SetIODir(DirOutput)
	}
	d.io.SetLevel(l)
}

func (d *PinDriver) ReadIO() Level {
	if d.dir != DirInput {
		d.SetIODir(DirInput)
	}
	return d.io.Level()
}

// SetIODir flips the bidirectional pin's direction. Re-configuring a pin
// is slow on most hosts, so a no-op flip to the current direction is
// skipped.
func (d *PinDriver) SetIODir(dir Direction) {
	if d.dir == dir {
		return
	}
	d.io.SetDirection(dir)
	d.dir = dir
}

func (d *PinDriver) SetRst(l Level) {
	d.rst.SetLevel(l)
}

// Tick blocks for one calibrated half-cycle.
func (d *PinDriver) Tick() {
	time.Sleep(d.halfCycle)
}

// SetSpeed calibrates the half-cycle delay for an approximate SWD clock
// rate in kHz; see speed.go for the lookup table.
func (d *PinDriver) SetSpeed(khz int) {
	d.halfCycle = halfCycleDelay(khz)
}
