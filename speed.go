// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import "time"

// speedMap entries pair a nominal SWD clock rate with the half-cycle delay
// that approximates it on a host with no hardware clock divider, mirroring
// the shape of a USB-probe speed table but resolving directly to a
// time.Duration instead of a device-side divisor register.
type speedMap struct {
	khz       int
	halfCycle time.Duration
}

var khzToHalfCycle = [...]speedMap{
	{4000, 125 * time.Nanosecond},
	{1800, 280 * time.Nanosecond},
	{1200, 420 * time.Nanosecond},
	{950, 525 * time.Nanosecond},
	{480, 1040 * time.Nanosecond},
	{240, 2080 * time.Nanosecond},
	{125, 4 * time.Microsecond},
	{100, 5 * time.Microsecond}, // default (NewPinDriver)
	{50, 10 * time.Microsecond},
	{25, 20 * time.Microsecond},
	{15, 33 * time.Microsecond},
	{5, 100 * time.Microsecond},
}

// halfCycleDelay returns the calibrated half-cycle delay for the closest
// supported rate not exceeding khz, falling back to the slowest supported
// rate if khz is below all of them.
func halfCycleDelay(khz int) time.Duration {
	best := khzToHalfCycle[len(khzToHalfCycle)-1]
	for _, m := range khzToHalfCycle {
		if khz >= m.khz {
			return m.halfCycle
		}
		best = m
	}
	return best.halfCycle
}
