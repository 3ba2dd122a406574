// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swdprog

import (
	"bufio"
	"io"
	"testing"
	"time"
)

func TestExtractFilePath(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
		ok   bool
	}{
		{"valid", "FILE: /sd/firmware.hex", "/sd/firmware.hex", true},
		{"no prefix", "firmware.hex", "", false},
		{"empty path", "FILE: ", "", false},
		{"embedded CR", "FILE: a\rb", "", false},
		{"embedded LF", "FILE: a\nb", "", false},
		{"too long", "FILE: " + string(make([]byte, maxPathLen+1)), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractFilePath(tt.line)
			if ok != tt.ok {
				t.Fatalf("extractFilePath(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("extractFilePath(%q) = %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

// commandHarness wires a CommandServer to two pipes so a test can act as
// the remote end: write commands in, read responses out.
type commandHarness struct {
	in  *io.PipeWriter
	out *bufio.Reader
	srv *CommandServer
}

func newCommandHarness() *commandHarness {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	return &commandHarness{
		in:  inW,
		out: bufio.NewReader(outR),
		srv: NewCommandServer(inR, outW),
	}
}

func (h *commandHarness) readLine(t *testing.T) string {
	t.Helper()
	line, err := h.out.ReadString('\n')
	if err != nil {
		t.Fatalf("readLine: %v", err)
	}
	return line
}

func TestCommandServerAnnounce(t *testing.T) {
	h := newCommandHarness()
	announceErr := make(chan error, 1)
	go func() { announceErr <- h.srv.Announce() }()

	if got := h.readLine(t); got != "READY\r\n" {
		t.Fatalf("Announce wrote %q, want %q", got, "READY\r\n")
	}
	if err := <-announceErr; err != nil {
		t.Fatalf("Announce: %v", err)
	}
}

func TestCommandServerServeDispatchesAndResponds(t *testing.T) {
	h := newCommandHarness()

	var gotPath string
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- h.srv.Serve(func(path string) Kind {
			gotPath = path
			return kindSuccess
		})
	}()

	if _, err := io.WriteString(h.in, "FILE: /sd/firmware.hex\r\n"); err != nil {
		t.Fatalf("write command: %v", err)
	}
	if got := h.readLine(t); got != "OK\r\n" {
		t.Fatalf("response = %q, want %q", got, "OK\r\n")
	}
	if gotPath != "/sd/firmware.hex" {
		t.Fatalf("handler path = %q, want /sd/firmware.hex", gotPath)
	}

	h.in.Close()
	if err := <-serveErr; err == nil {
		t.Fatal("Serve: expected error on transport close, got nil")
	}
}

func TestCommandServerServeReportsFailureKind(t *testing.T) {
	h := newCommandHarness()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- h.srv.Serve(func(path string) Kind {
			return KindHexParse
		})
	}()

	if _, err := io.WriteString(h.in, "FILE: bad.hex\r\n"); err != nil {
		t.Fatalf("write command: %v", err)
	}
	if got := h.readLine(t); got != "ERR_HEX_PARSE\r\n" {
		t.Fatalf("response = %q, want %q", got, "ERR_HEX_PARSE\r\n")
	}

	h.in.Close()
	<-serveErr
}

// withShortCmdTimeout lowers wholeCmdTimeout for the duration of a test and
// restores it afterward; readCommand has no other way to observe a timeout
// without waiting out the real 60s idle window.
func withShortCmdTimeout(t *testing.T, d time.Duration) {
	t.Helper()
	old := wholeCmdTimeout
	wholeCmdTimeout = d
	t.Cleanup(func() { wholeCmdTimeout = old })
}

// TestCommandServerServeIdleTimeout confirms a command that never
// completes eventually fails the connection once nothing arrives for
// wholeCmdTimeout, rather than blocking forever.
func TestCommandServerServeIdleTimeout(t *testing.T) {
	withShortCmdTimeout(t, 30*time.Millisecond)
	h := newCommandHarness()

	called := false
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- h.srv.Serve(func(path string) Kind {
			called = true
			return kindSuccess
		})
	}()

	if _, err := io.WriteString(h.in, "FIL"); err != nil {
		t.Fatalf("write partial command: %v", err)
	}

	select {
	case err := <-serveErr:
		if err == nil {
			t.Fatal("Serve: expected idle timeout error, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after the idle timeout elapsed")
	}
	if called {
		t.Fatal("handler should not run when no command ever completes")
	}
}

// TestCommandServerServeIdleTimeoutResetsPerCharacter confirms the idle
// timeout is measured from the last received character, not from the
// start of the command, matching original_source/Src/uart.c's
// UART_ReceiveCommand (start_tick resets on every received byte). A
// command arriving slower than wholeCmdTimeout in total, but with no gap
// between characters wider than wholeCmdTimeout, must still complete.
func TestCommandServerServeIdleTimeoutResetsPerCharacter(t *testing.T) {
	withShortCmdTimeout(t, 30*time.Millisecond)
	h := newCommandHarness()

	var gotPath string
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- h.srv.Serve(func(path string) Kind {
			gotPath = path
			return kindSuccess
		})
	}()

	go func() {
		for _, b := range []byte("FILE: a\r\n") {
			io.WriteString(h.in, string(b))
			time.Sleep(15 * time.Millisecond)
		}
	}()

	if got := h.readLine(t); got != "OK\r\n" {
		t.Fatalf("response = %q, want %q", got, "OK\r\n")
	}
	if gotPath != "a" {
		t.Fatalf("handler path = %q, want %q", gotPath, "a")
	}

	h.in.Close()
	<-serveErr
}

func TestCommandServerServeMalformedCommand(t *testing.T) {
	h := newCommandHarness()

	called := false
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- h.srv.Serve(func(path string) Kind {
			called = true
			return kindSuccess
		})
	}()

	if _, err := io.WriteString(h.in, "NOT A COMMAND\r\n"); err != nil {
		t.Fatalf("write command: %v", err)
	}
	if got := h.readLine(t); got != "NG\r\n" {
		t.Fatalf("response = %q, want %q", got, "NG\r\n")
	}
	if called {
		t.Fatal("handler should not run for a malformed command")
	}

	h.in.Close()
	<-serveErr
}
