// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fpserial provides the fingerprint.Port of a serial port.
//
// A goroutine reads the port continuously into a buffer, so that Buffered
// and ReadByte never block.
package fpserial

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/GermanBionicSystems/roomguard/fingerprint"
	"go.bug.st/serial"
)

// DefaultBaud is the factory baud rate of the modules.
const DefaultBaud = 57600

// Port is a fingerprint.Port over any byte stream.
type Port struct {
	rwc  io.ReadWriteCloser
	done chan struct{}

	mu  sync.Mutex
	buf []byte
	err error
}

// Open opens the serial port name at baud, 8N1. baud 0 means DefaultBaud.
func Open(name string, baud int) (*Port, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("fpserial: error opening %s %w", name, err)
	}
	return New(p), nil
}

// List returns the names of the serial ports found on the host.
func List() ([]string, error) {
	return serial.GetPortsList()
}

// New starts reading rwc. rwc is owned by the Port from now on.
func New(rwc io.ReadWriteCloser) *Port {
	p := &Port{rwc: rwc, done: make(chan struct{})}
	go p.readLoop()
	return p
}

func (p *Port) readLoop() {
	defer close(p.done)
	var b [64]byte
	for {
		n, err := p.rwc.Read(b[:])
		p.mu.Lock()
		p.buf = append(p.buf, b[:n]...)
		if err != nil {
			p.err = err
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

func (p *Port) String() string {
	if s, ok := p.rwc.(fmt.Stringer); ok {
		return s.String()
	}
	return "fpserial"
}

// Write implements fingerprint.Port.
func (p *Port) Write(b []byte) (int, error) {
	return p.rwc.Write(b)
}

// Flush waits for the written bytes to be sent, when the underlying port
// supports it.
func (p *Port) Flush() error {
	if d, ok := p.rwc.(interface{ Drain() error }); ok {
		return d.Drain()
	}
	return nil
}

// Buffered implements fingerprint.Port.
func (p *Port) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// ReadByte implements fingerprint.Port. It returns io.EOF when nothing is
// buffered, or the read error once the stream failed.
func (p *Port) ReadByte() (byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.buf) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		return 0, io.EOF
	}
	b := p.buf[0]
	p.buf = p.buf[1:]
	return b, nil
}

// Close closes the stream and waits for the reader to stop.
func (p *Port) Close() error {
	err := p.rwc.Close()
	<-p.done
	if err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("fpserial: error closing %w", err)
	}
	return nil
}

var _ fingerprint.Port = &Port{}
