// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package fingerprint drives FPM383 family fingerprint modules (and other
// modules speaking the same EF01 protocol) over a serial link.
//
// # Protocol
//
// Every packet is
//
//	EF 01 | address (4) | id (1) | length (2) | payload | checksum (2)
//
// where length counts the payload and the checksum, and the checksum is the
// 16 bit sum of the id, length and payload bytes. Multi-byte fields are big
// endian. The host sends command packets (id 0x01) and the module answers
// with an acknowledgement (id 0x07) whose first payload byte is the
// confirmation code. The link runs at 57600 baud, 8N1, half duplex.
//
// # Operations
//
// Each operation writes one command and waits for the acknowledgement up to
// its own time budget. The confirmation code is returned as-is. When nothing
// usable is received, the code is CodeNoResponse and the error tells why:
// ErrResponseTimeout, ErrMalformedResponse or ErrChecksumMismatch. Nothing is
// retried.
package fingerprint

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/GermanBionicSystems/roomguard/common"
	"periph.io/x/conn/v3"
)

// ErrResponseTimeout is returned when no byte arrived within the operation
// budget.
var ErrResponseTimeout = errors.New("fingerprint: response timeout")

// Port is the serial link to the module.
type Port interface {
	io.Writer
	// Buffered returns the number of bytes that can be read without blocking.
	Buffered() int
	ReadByte() (byte, error)
}

// flusher is implemented by ports buffering writes.
type flusher interface {
	Flush() error
}

// Opts holds the time budgets of the operations.
type Opts struct {
	// Timeout is the budget of every operation but enroll and search.
	Timeout time.Duration
	// EnrollTimeout covers a whole AutoEnroll, including the finger presses.
	EnrollTimeout time.Duration
	SearchTimeout time.Duration
	// CaptureLimit is the maximum number of bytes read per response.
	CaptureLimit int
	// ByteDelay is waited before reading each byte, letting the rest of the
	// packet arrive.
	ByteDelay time.Duration
	// PollInterval is the wait between checks for the first response byte.
	PollInterval time.Duration
	// LibrarySize is the number of pages Identify searches.
	LibrarySize uint16
	// Clock is used for the waits. nil means common.SystemClock.
	Clock common.Clock
	// Logger receives the frames at debug level. nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOpts matches the FPM383C timings.
var DefaultOpts = Opts{
	Timeout:       2 * time.Second,
	EnrollTimeout: 10 * time.Second,
	SearchTimeout: 2 * time.Second,
	CaptureLimit:  16,
	ByteDelay:     2 * time.Millisecond,
	PollInterval:  time.Millisecond,
	LibrarySize:   0xffff,
}

// SearchResult is the outcome of a library search.
type SearchResult struct {
	Code Code
	// Page and Score are only set when Code is CodeOK.
	Page  PageID
	Score uint16
}

// Dev is a fingerprint module.
type Dev struct {
	port Port
	opts Opts
	clk  common.Clock
	log  *slog.Logger

	mu sync.Mutex
	rx []byte
}

// New returns a module on port. opts may be nil for DefaultOpts; zero fields
// take their default.
func New(port Port, opts *Opts) (*Dev, error) {
	if port == nil {
		return nil, errors.New("fingerprint: port is required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.Timeout <= 0 {
		o.Timeout = DefaultOpts.Timeout
	}
	if o.EnrollTimeout <= 0 {
		o.EnrollTimeout = DefaultOpts.EnrollTimeout
	}
	if o.SearchTimeout <= 0 {
		o.SearchTimeout = DefaultOpts.SearchTimeout
	}
	if o.CaptureLimit < minResponseSize {
		o.CaptureLimit = DefaultOpts.CaptureLimit
	}
	if o.ByteDelay <= 0 {
		o.ByteDelay = DefaultOpts.ByteDelay
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultOpts.PollInterval
	}
	if o.LibrarySize == 0 {
		o.LibrarySize = DefaultOpts.LibrarySize
	}
	d := &Dev{port: port, opts: o, clk: o.Clock, log: o.Logger, rx: make([]byte, o.CaptureLimit)}
	if d.clk == nil {
		d.clk = common.SystemClock
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d, nil
}

func (d *Dev) String() string {
	return "fingerprint"
}

// Halt aborts the operation the module may be running.
func (d *Dev) Halt() error {
	_, err := d.Cancel()
	return err
}

// exchange sends pkt and captures the acknowledgement.
func (d *Dev) exchange(op string, pkt []byte, timeout time.Duration) (Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.discard()
	d.log.Debug("fingerprint tx", slog.String("op", op), slog.String("bytes", fmt.Sprintf("% x", pkt)))
	if _, err := d.port.Write(pkt); err != nil {
		return Response{Code: CodeNoResponse}, fmt.Errorf("fingerprint: %s: error writing %w", op, err)
	}
	if f, ok := d.port.(flusher); ok {
		if err := f.Flush(); err != nil {
			return Response{Code: CodeNoResponse}, fmt.Errorf("fingerprint: %s: error flushing %w", op, err)
		}
	}

	arrived := common.Poll(d.clk, timeout, d.opts.PollInterval, func() bool {
		return d.port.Buffered() > 0
	})
	if !arrived {
		d.log.Debug("fingerprint timeout", slog.String("op", op), slog.Duration("budget", timeout))
		return Response{Code: CodeNoResponse}, fmt.Errorf("fingerprint: %s: %w after %s", op, ErrResponseTimeout, timeout)
	}
	n := 0
	for n < len(d.rx) && d.port.Buffered() > 0 {
		d.clk.Sleep(d.opts.ByteDelay)
		b, err := d.port.ReadByte()
		if err != nil {
			return Response{Code: CodeNoResponse}, fmt.Errorf("fingerprint: %s: error reading %w", op, err)
		}
		d.rx[n] = b
		n++
	}
	d.log.Debug("fingerprint rx", slog.String("op", op), slog.String("bytes", fmt.Sprintf("% x", d.rx[:n])))
	resp, err := ParseResponse(d.rx[:n])
	if err != nil {
		return resp, fmt.Errorf("fingerprint: %s: %w", op, err)
	}
	return resp, nil
}

// discard drops bytes left over from a previous exchange, so that they are
// not taken for the next acknowledgement.
func (d *Dev) discard() {
	dropped := 0
	for d.port.Buffered() > 0 {
		if _, err := d.port.ReadByte(); err != nil {
			break
		}
		dropped++
	}
	if dropped > 0 {
		d.log.Debug("fingerprint discarded stale bytes", slog.Int("count", dropped))
	}
}

func (d *Dev) command(op string, pkt []byte, timeout time.Duration) (Code, error) {
	resp, err := d.exchange(op, pkt, timeout)
	return resp.Code, err
}

// GetImage captures the finger on the sensor. CodeNoFinger is returned when
// there is none.
func (d *Dev) GetImage() (Code, error) {
	return d.command("GetImage", GetImagePacket(), d.opts.Timeout)
}

// GetChar extracts the features of the captured image into character buffer
// buf, 1 or 2.
func (d *Dev) GetChar(buf byte) (Code, error) {
	if buf != 1 && buf != 2 {
		return CodeNoResponse, fmt.Errorf("fingerprint: invalid character buffer %d", buf)
	}
	return d.command("GetChar", GetCharPacket(buf), d.opts.Timeout)
}

// GetChar1 extracts features into character buffer 1, the one searched by
// Search.
func (d *Dev) GetChar1() (Code, error) {
	return d.GetChar(1)
}

// AutoEnroll runs a complete enrollment into page. The module asks for the
// finger several times, so the budget is EnrollTimeout.
func (d *Dev) AutoEnroll(page PageID) (Code, error) {
	return d.command("AutoEnroll", AutoEnrollPacket(page), d.opts.EnrollTimeout)
}

// Delete removes the template at page.
func (d *Dev) Delete(page PageID) (Code, error) {
	return d.DeleteRange(page, 1)
}

// DeleteRange removes count templates starting at page.
func (d *Dev) DeleteRange(page PageID, count uint16) (Code, error) {
	if count == 0 {
		return CodeNoResponse, errors.New("fingerprint: nothing to delete")
	}
	return d.command("Delete", DeletePacket(page, count), d.opts.Timeout)
}

// Empty deletes every template.
func (d *Dev) Empty() (Code, error) {
	return d.command("Empty", EmptyPacket(), d.opts.Timeout)
}

// Cancel aborts an enrollment or search in progress.
func (d *Dev) Cancel() (Code, error) {
	return d.command("Cancel", CancelPacket(), d.opts.Timeout)
}

// Search looks for the features of character buffer 1 in count pages from
// start.
func (d *Dev) Search(start PageID, count uint16) (SearchResult, error) {
	resp, err := d.exchange("Search", SearchPacket(1, start, count), d.opts.SearchTimeout)
	if err != nil {
		return SearchResult{Code: resp.Code}, err
	}
	r := SearchResult{Code: resp.Code}
	if r.Code != CodeOK {
		return r, nil
	}
	if len(resp.Params) < 2 {
		return SearchResult{Code: CodeNoResponse}, fmt.Errorf("fingerprint: Search: %w: no page id", ErrMalformedResponse)
	}
	r.Page = PageID(uint16(resp.Params[0])<<8 | uint16(resp.Params[1]))
	if len(resp.Params) >= 4 {
		r.Score = uint16(resp.Params[2])<<8 | uint16(resp.Params[3])
	}
	return r, nil
}

// Identify captures the finger on the sensor and searches the whole library
// for it. A step returning a non-OK code stops the sequence with a
// *CodeError; the code is also in the result.
func (d *Dev) Identify() (SearchResult, error) {
	steps := []struct {
		op string
		f  func() (Code, error)
	}{
		{"GetImage", d.GetImage},
		{"GetChar", d.GetChar1},
	}
	for _, step := range steps {
		code, err := step.f()
		if err != nil {
			return SearchResult{Code: code}, err
		}
		if code != CodeOK {
			return SearchResult{Code: code}, &CodeError{Operation: step.op, Code: code}
		}
	}
	r, err := d.Search(0, d.opts.LibrarySize)
	if err == nil && r.Code != CodeOK {
		err = &CodeError{Operation: "Search", Code: r.Code}
	}
	return r, err
}

var _ conn.Resource = &Dev{}
