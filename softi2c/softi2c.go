// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package softi2c implements an I²C master by toggling two GPIO lines.
//
// Both lines are treated as open drain: a line is raised by switching the pin
// to a pulled-up input and lowered by driving it as a low output. The bus
// honors clock stretching with a bounded wait.
//
// Bus implements i2c.BusCloser so any periph I²C device driver can be used on
// top of it. The Start, Stop, SendByte and ReceiveByte primitives are exported
// for devices needing framing that Tx doesn't cover. They don't lock the bus:
// a caller using them must not run Tx concurrently.
package softi2c

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GermanBionicSystems/roomguard/common"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

var (
	// ErrAckMissing is returned when the target did not acknowledge a byte.
	ErrAckMissing = errors.New("softi2c: byte not acknowledged")
	// ErrBusTimeout is returned when SCL stayed low longer than the stretch
	// timeout.
	ErrBusTimeout = errors.New("softi2c: timed out waiting for SCL to rise")
)

// AckError reports which byte of a transaction was not acknowledged. It
// matches ErrAckMissing with errors.Is.
type AckError struct {
	Addr uint16
	// Index is the position of the byte in the transaction. 0 is the address
	// byte.
	Index int
	Read  bool
}

func (e *AckError) Error() string {
	dir := "write"
	if e.Read {
		dir = "read"
	}
	return fmt.Sprintf("softi2c: address 0x%02x did not acknowledge byte %d of %s", e.Addr, e.Index, dir)
}

// Is makes errors.Is(err, ErrAckMissing) work.
func (e *AckError) Is(target error) bool {
	return target == ErrAckMissing
}

// Opts holds the bus timing.
type Opts struct {
	// HalfPeriod is the settle delay after every line transition. Zero
	// fields take the value from DefaultOpts.
	HalfPeriod time.Duration
	// StretchTimeout bounds how long a target may hold SCL low.
	StretchTimeout time.Duration
	// StretchPoll is the interval between SCL samples while stretched.
	StretchPoll time.Duration
	// Clock is used for every delay. nil means common.SystemClock.
	Clock common.Clock
	// Logger receives debug traces. nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOpts is about 100kHz with a stretch timeout above the longest
// conversion time of the Sensirion parts.
var DefaultOpts = Opts{
	HalfPeriod:     5 * time.Microsecond,
	StretchTimeout: 25 * time.Millisecond,
	StretchPoll:    10 * time.Microsecond,
}

// Bus is a bit-banged I²C master.
type Bus struct {
	scl gpio.PinIO
	sda gpio.PinIO

	mu sync.Mutex
	// halfPeriod is in nanoseconds. SetSpeed may change it while a
	// transaction runs.
	halfPeriod     atomic.Int64
	stretchTimeout time.Duration
	stretchPoll    time.Duration
	clk            common.Clock
	log            *slog.Logger
}

// New returns a Bus driving scl and sda. Both lines are released.
func New(scl, sda gpio.PinIO, opts *Opts) (*Bus, error) {
	if scl == nil || sda == nil {
		return nil, errors.New("softi2c: scl and sda are required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	b := &Bus{
		scl:            scl,
		sda:            sda,
		stretchTimeout: opts.StretchTimeout,
		stretchPoll:    opts.StretchPoll,
		clk:            opts.Clock,
		log:            opts.Logger,
	}
	half := opts.HalfPeriod
	if half <= 0 {
		half = DefaultOpts.HalfPeriod
	}
	b.halfPeriod.Store(int64(half))
	if b.stretchTimeout <= 0 {
		b.stretchTimeout = DefaultOpts.StretchTimeout
	}
	if b.stretchPoll <= 0 {
		b.stretchPoll = DefaultOpts.StretchPoll
	}
	if b.clk == nil {
		b.clk = common.SystemClock
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if err := b.release(b.sda); err != nil {
		return nil, fmt.Errorf("softi2c: releasing sda %w", err)
	}
	if err := b.release(b.scl); err != nil {
		return nil, fmt.Errorf("softi2c: releasing scl %w", err)
	}
	return b, nil
}

func (b *Bus) String() string {
	return fmt.Sprintf("softi2c(scl=%s, sda=%s)", b.scl, b.sda)
}

// Close releases both lines.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return errors.Join(b.release(b.sda), b.release(b.scl))
}

// SetSpeed sets the half period to 1/(2*f). The half period is never below
// one microsecond.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("softi2c: invalid speed %s", f)
	}
	half := f.Period() / 2
	if half < time.Microsecond {
		half = time.Microsecond
	}
	b.halfPeriod.Store(int64(half))
	return nil
}

// SCL implements i2c.Pins.
func (b *Bus) SCL() gpio.PinIO { return b.scl }

// SDA implements i2c.Pins.
func (b *Bus) SDA() gpio.PinIO { return b.sda }

// Tx implements i2c.Bus.
//
// The write phase is addressed with the R/W bit cleared. When r is not empty,
// a repeated start addresses the target with the R/W bit set and every byte
// but the last is acknowledged. A stop is always issued, even on failure.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	if addr > 0x7f {
		return fmt.Errorf("softi2c: invalid 7-bit address 0x%x", addr)
	}
	if len(w) == 0 && len(r) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.tx(addr, w, r)
	if stopErr := b.Stop(); err == nil {
		err = stopErr
	}
	if err != nil {
		b.log.Debug("softi2c transaction failed", slog.Int("addr", int(addr)), slog.Any("error", err))
	}
	return err
}

func (b *Bus) tx(addr uint16, w, r []byte) error {
	if len(w) > 0 {
		if err := b.Start(); err != nil {
			return err
		}
		if err := b.sendChecked(byte(addr<<1), addr, 0, false); err != nil {
			return err
		}
		for ix, v := range w {
			if err := b.sendChecked(v, addr, ix+1, false); err != nil {
				return err
			}
		}
	}
	if len(r) == 0 {
		return nil
	}
	if err := b.Start(); err != nil {
		return err
	}
	if err := b.sendChecked(byte(addr<<1)|1, addr, 0, true); err != nil {
		return err
	}
	for ix := range r {
		v, err := b.ReceiveByte(ix < len(r)-1)
		if err != nil {
			return err
		}
		r[ix] = v
	}
	return nil
}

func (b *Bus) sendChecked(v byte, addr uint16, index int, read bool) error {
	ack, err := b.SendByte(v)
	if err != nil {
		return err
	}
	if !ack {
		return &AckError{Addr: addr, Index: index, Read: read}
	}
	return nil
}

// Start generates a start condition: SDA falls while SCL is high, then SCL
// falls. Calling it in the middle of a transaction is a repeated start.
func (b *Bus) Start() error {
	if err := b.release(b.sda); err != nil {
		return err
	}
	if err := b.sclHigh(); err != nil {
		return err
	}
	if err := b.low(b.sda); err != nil {
		return err
	}
	b.delay()
	return b.low(b.scl)
}

// Stop generates a stop condition: with both lines low, SCL rises, then SDA
// rises while SCL is high.
func (b *Bus) Stop() error {
	if err := b.low(b.sda); err != nil {
		return err
	}
	b.delay()
	if err := b.sclHigh(); err != nil {
		return err
	}
	b.delay()
	if err := b.release(b.sda); err != nil {
		return err
	}
	b.delay()
	return nil
}

// SendByte shifts v out MSB first and returns true if the target pulled SDA
// low on the ninth clock.
func (b *Bus) SendByte(v byte) (bool, error) {
	for bit := 7; bit >= 0; bit-- {
		var err error
		if v&(1<<uint(bit)) != 0 {
			err = b.release(b.sda)
		} else {
			err = b.low(b.sda)
		}
		if err != nil {
			return false, err
		}
		if err := b.pulse(); err != nil {
			return false, err
		}
	}
	if err := b.release(b.sda); err != nil {
		return false, err
	}
	if err := b.sclHigh(); err != nil {
		return false, err
	}
	ack := b.sda.Read() == gpio.Low
	return ack, b.low(b.scl)
}

// ReceiveByte clocks in 8 bits MSB first. It then acknowledges the byte if
// ack is true or leaves SDA released to signal the last byte.
func (b *Bus) ReceiveByte(ack bool) (byte, error) {
	if err := b.release(b.sda); err != nil {
		return 0, err
	}
	var v byte
	for bit := 7; bit >= 0; bit-- {
		if err := b.sclHigh(); err != nil {
			return v, err
		}
		if b.sda.Read() == gpio.High {
			v |= 1 << uint(bit)
		}
		if err := b.low(b.scl); err != nil {
			return v, err
		}
	}
	var err error
	if ack {
		err = b.low(b.sda)
	} else {
		err = b.release(b.sda)
	}
	if err != nil {
		return v, err
	}
	if err := b.sclHigh(); err != nil {
		return v, err
	}
	b.delay()
	if err := b.low(b.scl); err != nil {
		return v, err
	}
	return v, b.release(b.sda)
}

// pulse raises then lowers SCL.
func (b *Bus) pulse() error {
	if err := b.sclHigh(); err != nil {
		return err
	}
	return b.low(b.scl)
}

// sclHigh releases SCL and waits until a stretching target lets it rise.
func (b *Bus) sclHigh() error {
	if err := b.release(b.scl); err != nil {
		return err
	}
	high := common.Poll(b.clk, b.stretchTimeout, b.stretchPoll, func() bool {
		return b.scl.Read() == gpio.High
	})
	if !high {
		return ErrBusTimeout
	}
	return nil
}

func (b *Bus) release(p gpio.PinIO) error {
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return err
	}
	b.delay()
	return nil
}

func (b *Bus) low(p gpio.PinIO) error {
	if err := p.Out(gpio.Low); err != nil {
		return err
	}
	b.delay()
	return nil
}

func (b *Bus) delay() {
	if half := time.Duration(b.halfPeriod.Load()); half > 0 {
		b.clk.Sleep(half)
	}
}

var _ i2c.BusCloser = &Bus{}
var _ i2c.Pins = &Bus{}
