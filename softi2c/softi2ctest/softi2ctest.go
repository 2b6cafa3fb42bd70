// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package softi2ctest simulates an open-drain I²C wire with a single target
// device attached, so that a bit-banged master can be tested without
// hardware.
//
// The two pins returned by Wire.SCL and Wire.SDA implement gpio.PinIO. A pin
// is released with In(gpio.PullUp, ...) and pulled low with Out(gpio.Low);
// driving a line high is refused. The target reacts on clock edges exactly
// like a real device: it samples SDA on rising edges and changes SDA on
// falling edges.
package softi2ctest

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// Sample is the state of both lines after a transition.
type Sample struct {
	SCL gpio.Level
	SDA gpio.Level
}

// Condition is a bus condition observed by the target.
type Condition string

const (
	Start Condition = "start"
	Stop  Condition = "stop"
)

// Target describes the simulated device.
type Target struct {
	// Addr is the 7-bit address the target answers to.
	Addr uint16
	// NackAddress makes the target ignore its own address.
	NackAddress bool
	// NackWrites makes the target refuse every written data byte.
	NackWrites bool
	// Data is returned on reads, in order. 0xFF is returned once exhausted.
	Data []byte
	// Stretch is the number of SCL samples during which the target keeps SCL
	// low every time the master releases it. A negative value holds SCL low
	// forever.
	Stretch int
}

// Wire is a simulated bus with one target.
type Wire struct {
	mu sync.Mutex

	target Target
	scl    *Pin
	sda    *Pin

	// Lines pulled low by the master.
	masterSCL bool
	masterSDA bool
	// SCL samples left before the target lets SCL rise.
	hold int

	lastSCL gpio.Level
	lastSDA gpio.Level

	trace      []Sample
	conditions []Condition
	written    []byte
	readCount  int

	phase     phase
	bit       int
	shift     byte
	drive     bool
	reading   bool
	masterAck bool
	current   byte
}

type phase int

const (
	idle phase = iota
	addressing
	receiving
	transmitting
)

type line int

const (
	lineSCL line = iota
	lineSDA
)

// NewWire returns a wire with both lines released and t attached.
func NewWire(t Target) *Wire {
	w := &Wire{target: t, lastSCL: gpio.High, lastSDA: gpio.High}
	w.scl = &Pin{Pin: gpiotest.Pin{N: "SCL", Num: 1}, w: w, line: lineSCL}
	w.sda = &Pin{Pin: gpiotest.Pin{N: "SDA", Num: 2}, w: w, line: lineSDA}
	return w
}

// SCL returns the clock line.
func (w *Wire) SCL() *Pin { return w.scl }

// SDA returns the data line.
func (w *Wire) SDA() *Pin { return w.sda }

// Trace returns every line state change since the wire was created or reset.
func (w *Wire) Trace() []Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Sample(nil), w.trace...)
}

// Conditions returns the start and stop conditions the target observed.
func (w *Wire) Conditions() []Condition {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Condition(nil), w.conditions...)
}

// Written returns the data bytes the target acknowledged, address bytes
// excluded.
func (w *Wire) Written() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.written...)
}

// ResetTrace clears the recorded trace and conditions.
func (w *Wire) ResetTrace() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.trace = nil
	w.conditions = nil
}

// SetData replaces the bytes returned on the next reads.
func (w *Wire) SetData(data []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.target.Data = data
	w.readCount = 0
}

func (w *Wire) sclLevel() gpio.Level {
	return gpio.Level(!w.masterSCL && w.hold == 0)
}

func (w *Wire) sdaLevel() gpio.Level {
	return gpio.Level(!w.masterSDA && !w.drive)
}

func (w *Wire) set(l line, low bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch l {
	case lineSCL:
		if w.masterSCL && !low {
			w.hold = w.target.Stretch
		}
		w.masterSCL = low
	case lineSDA:
		w.masterSDA = low
	}
	w.update()
}

func (w *Wire) read(l line) gpio.Level {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l == lineSDA {
		return w.sdaLevel()
	}
	if !w.masterSCL && w.hold > 0 {
		w.hold--
		w.update()
	}
	return w.sclLevel()
}

// update records the new line state and runs the target on edges.
func (w *Wire) update() {
	scl, sda := w.sclLevel(), w.sdaLevel()
	if scl == w.lastSCL && sda == w.lastSDA {
		return
	}
	prevSCL, prevSDA := w.lastSCL, w.lastSDA
	w.lastSCL, w.lastSDA = scl, sda
	w.trace = append(w.trace, Sample{SCL: scl, SDA: sda})
	switch {
	case scl != prevSCL && scl == gpio.High:
		w.rising(sda)
	case scl != prevSCL:
		w.falling()
	case scl == gpio.High && sda != prevSDA:
		if sda == gpio.Low {
			w.conditions = append(w.conditions, Start)
			w.phase, w.bit, w.shift, w.drive = addressing, 0, 0, false
		} else {
			w.conditions = append(w.conditions, Stop)
			w.phase, w.drive = idle, false
		}
	}
	// The target only changes SDA while SCL is low.
	if sda = w.sdaLevel(); sda != w.lastSDA {
		w.lastSDA = sda
		w.trace = append(w.trace, Sample{SCL: w.lastSCL, SDA: sda})
	}
}

func (w *Wire) rising(sda gpio.Level) {
	switch w.phase {
	case addressing, receiving:
		if w.bit < 8 {
			w.shift <<= 1
			if sda == gpio.High {
				w.shift |= 1
			}
		}
		w.bit++
	case transmitting:
		if w.bit == 8 {
			w.masterAck = sda == gpio.Low
		}
		w.bit++
	}
}

func (w *Wire) falling() {
	switch w.phase {
	case addressing:
		switch w.bit {
		case 8:
			if uint16(w.shift>>1) != w.target.Addr || w.target.NackAddress {
				w.phase, w.drive = idle, false
				return
			}
			w.reading = w.shift&1 == 1
			w.drive = true
		case 9:
			w.drive, w.bit, w.shift = false, 0, 0
			if w.reading {
				w.phase = transmitting
				w.load()
			} else {
				w.phase = receiving
			}
		}
	case receiving:
		switch w.bit {
		case 8:
			if w.target.NackWrites {
				w.phase, w.drive = idle, false
				return
			}
			w.written = append(w.written, w.shift)
			w.drive = true
		case 9:
			w.drive, w.bit, w.shift = false, 0, 0
		}
	case transmitting:
		switch {
		case w.bit >= 1 && w.bit <= 7:
			w.drive = w.current&(1<<uint(7-w.bit)) == 0
		case w.bit == 8:
			w.drive = false
		case w.bit == 9:
			if w.masterAck {
				w.load()
			} else {
				w.phase, w.drive = idle, false
			}
		}
	}
}

// load puts the MSB of the next data byte on SDA.
func (w *Wire) load() {
	w.current = 0xff
	if w.readCount < len(w.target.Data) {
		w.current = w.target.Data[w.readCount]
	}
	w.readCount++
	w.bit = 0
	w.drive = w.current&0x80 == 0
}

// Pin is one line of the simulated wire.
type Pin struct {
	gpiotest.Pin
	w    *Wire
	line line
}

// In releases the line. Only pull-up or floating inputs are accepted.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if pull == gpio.PullDown {
		return errors.New("softi2ctest: pull-down on an I²C line")
	}
	p.w.set(p.line, false)
	return nil
}

// Out pulls the line low. Driving it high is an error on an open-drain bus.
func (p *Pin) Out(l gpio.Level) error {
	if l == gpio.High {
		return errors.New("softi2ctest: " + p.N + " driven high")
	}
	p.w.set(p.line, true)
	return nil
}

// Read returns the wired-AND level of the line.
func (p *Pin) Read() gpio.Level {
	return p.w.read(p.line)
}

var _ gpio.PinIO = &Pin{}
