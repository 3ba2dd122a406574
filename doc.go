// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package swdprog implements a standalone firmware programmer: it reads an
// Intel HEX image from removable storage and flashes it into an ARM
// Cortex-M target over bit-banged SWD (ADIv5), driven entirely by a
// line-oriented command channel.
//
// The pipeline is: CommandServer receives a "FILE: <path>" request over
// the command channel, Storage streams the named file one sector at a
// time, an Assembler coalesces the decoded Record stream into
// fixed-size WriteUnits, and a Session drives those units through a
// FlashController sitting on a MemAP/DebugPort/LineEngine stack talking
// to the target over three GPIO pins. SimTarget substitutes for real
// hardware in tests and in cmd/swdflash's --sim mode.
package swdprog
