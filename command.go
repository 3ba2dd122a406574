// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	cmdPrefix      = "FILE: "
	maxPathLen     = 127
	perCharTimeout = 10 * time.Millisecond
)

// wholeCmdTimeout is a var, not a const, so a test can shorten it rather
// than waiting out the real idle timeout.
var wholeCmdTimeout = 60 * time.Second

type commandByte struct {
	b   byte
	err error
}

// CommandServer is the line-oriented request/response command channel
// (spec.md §6): it is transport-agnostic, backed by any io.Reader +
// io.Writer, so cmd/swdflash can wire a real serial port in while tests
// use an in-memory pipe.
type CommandServer struct {
	w  io.Writer
	br *bufio.Reader
	ch chan commandByte
}

func NewCommandServer(r io.Reader, w io.Writer) *CommandServer {
	c := &CommandServer{
		w:  w,
		br: bufio.NewReader(r),
		ch: make(chan commandByte, 1),
	}
	go c.readLoop()
	return c
}

// readLoop runs for the server's lifetime, feeding bytes into ch one at a
// time so readCommand can apply a per-character timeout on top of a
// transport with no native read deadline.
func (c *CommandServer) readLoop() {
	for {
		b, err := c.br.ReadByte()
		c.ch <- commandByte{b, err}
		if err != nil {
			return
		}
	}
}

// Announce emits the boot-time READY line.
func (c *CommandServer) Announce() error {
	_, err := io.WriteString(c.w, "READY\r\n")
	return err
}

// Handler runs one programming session for the given already-resolved
// file path and returns the Kind to report back over the command channel.
type Handler func(path string) Kind

// Serve blocks reading one command, dispatches it to handle, and writes
// the resulting response code. It returns on a transport error (EOF, read
// or write failure) or when no byte arrives within wholeCmdTimeout while a
// command is being read; malformed commands are reported as NG and do not
// terminate the loop.
func (c *CommandServer) Serve(handle Handler) error {
	for {
		line, err := c.readCommand()
		if err != nil {
			return err
		}

		path, ok := extractFilePath(line)
		if !ok {
			if err := c.respond(KindGeneric); err != nil {
				return err
			}
			continue
		}

		kind := handle(path)
		if err := c.respondOK(kind); err != nil {
			return err
		}
	}
}

func (c *CommandServer) respond(k Kind) error {
	_, err := io.WriteString(c.w, k.ResponseCode())
	return err
}

// respondOK writes "OK\r\n" for the kindSuccess sentinel (no error),
// otherwise the kind's own error code.
func (c *CommandServer) respondOK(k Kind) error {
	if k == kindSuccess {
		_, err := io.WriteString(c.w, "OK\r\n")
		return err
	}
	return c.respond(k)
}

// kindSuccess is a sentinel Handler can return to signal a successful
// programming session; it is never surfaced as an error code.
const kindSuccess Kind = -1

// readCommand reads one CR/LF-terminated line, enforcing a per-character
// timeout and an overall idle timeout, matching
// original_source/Src/uart.c's UART_ReceiveCommand discipline translated
// onto an io.Reader lacking native read deadlines: start_tick there resets
// on every received character, so wholeCmdTimeout bounds the gap between
// characters, not the command's total duration.
func (c *CommandServer) readCommand() (string, error) {
	deadline := time.Now().Add(wholeCmdTimeout)
	var sb strings.Builder
	first := true
	for {
		remaining := perCharTimeout
		if left := time.Until(deadline); left < remaining {
			remaining = left
		}
		if remaining <= 0 {
			return "", fmt.Errorf("whole-command timeout exceeded")
		}

		select {
		case res := <-c.ch:
			if res.err != nil {
				return "", res.err
			}
			deadline = time.Now().Add(wholeCmdTimeout)

			// A command always ends in \r or \r\n; the \n of a CRLF
			// terminator is swallowed here when it leads the next
			// command instead of being re-read as an empty line.
			if first && res.b == '\n' {
				first = false
				continue
			}
			first = false

			if res.b == '\n' {
				return strings.TrimSuffix(sb.String(), "\r"), nil
			}
			if res.b == '\r' {
				return sb.String(), nil
			}
			sb.WriteByte(res.b)

		case <-time.After(remaining):
			continue
		}
	}
}

// extractFilePath validates the "FILE: <path>" grammar and returns the
// path, matching original_source/Src/uart.c's UART_ExtractFilePath.
func extractFilePath(line string) (string, bool) {
	if !strings.HasPrefix(line, cmdPrefix) {
		return "", false
	}
	path := line[len(cmdPrefix):]
	if path == "" || len(path) > maxPathLen {
		return "", false
	}
	if strings.ContainsAny(path, "\r\n") {
		return "", false
	}
	return path, true
}
