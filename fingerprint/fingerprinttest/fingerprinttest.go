// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fingerprinttest is meant to be used to test drivers over a fake
// fingerprint module.
package fingerprinttest

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/GermanBionicSystems/roomguard/common"
	"github.com/GermanBionicSystems/roomguard/fingerprint"
)

// Reply is what the module sends back after one command.
type Reply struct {
	// Bytes is sent as-is. nil means the module stays silent.
	Bytes []byte
	// Latency is the delay between the command and the first byte. It is
	// only honored when Module.Clock is set.
	Latency time.Duration
}

// Ack returns an acknowledgement packet with code and optional parameters.
func Ack(code fingerprint.Code, params ...byte) []byte {
	return fingerprint.BuildPacket(fingerprint.PacketAck, append([]byte{byte(code)}, params...))
}

// Module implements fingerprint.Port. Each Write consumes the next queued
// Reply.
type Module struct {
	// Clock times the latency of the replies.
	Clock common.Clock
	// DontPanic makes a Write without a queued reply stay silent instead of
	// failing.
	DontPanic bool

	mu      sync.Mutex
	replies []Reply
	written [][]byte
	flushes int
	rx      []byte
	readyAt time.Time
}

// Queue appends replies to send.
func (m *Module) Queue(replies ...Reply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, replies...)
}

// Inject makes b readable right away, as line noise or a late answer would.
func (m *Module) Inject(b ...byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rx = append(m.rx, b...)
}

// Write implements fingerprint.Port.
func (m *Module) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, append([]byte(nil), b...))
	if len(m.replies) == 0 {
		if m.DontPanic {
			return len(b), nil
		}
		return 0, fmt.Errorf("fingerprinttest: unexpected command % x", b)
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	m.rx = append(m.rx, r.Bytes...)
	if m.Clock != nil {
		m.readyAt = m.Clock.Now().Add(r.Latency)
	}
	return len(b), nil
}

// Flush implements the optional flusher of fingerprint.Dev.
func (m *Module) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Buffered implements fingerprint.Port.
func (m *Module) Buffered() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buffered()
}

func (m *Module) buffered() int {
	if m.Clock != nil && m.Clock.Now().Before(m.readyAt) {
		return 0
	}
	return len(m.rx)
}

// ReadByte implements fingerprint.Port.
func (m *Module) ReadByte() (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buffered() == 0 {
		return 0, io.EOF
	}
	b := m.rx[0]
	m.rx = m.rx[1:]
	return b, nil
}

// Written returns the commands received so far.
func (m *Module) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

// Flushes returns the number of Flush calls.
func (m *Module) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Pending returns the number of queued replies not consumed yet.
func (m *Module) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.replies)
}

// Unread returns the number of bytes sent but not read, whether their
// latency elapsed or not.
func (m *Module) Unread() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

var _ fingerprint.Port = &Module{}
