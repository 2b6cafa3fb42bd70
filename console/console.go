// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package console prints room readings and fingerprint results to a terminal
// as a one line status strip using ANSI color codes.
//
// Each call redraws the line in place, so a loop calling ShowMeasurement
// behaves like a small panel display.
package console

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"sync"

	"github.com/GermanBionicSystems/roomguard/fingerprint"
	"github.com/GermanBionicSystems/roomguard/sht3x"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

var (
	colorOK      = color.NRGBA{0x00, 0xc0, 0x00, 0xff}
	colorFailure = color.NRGBA{0xd0, 0x00, 0x00, 0xff}
	colorNone    = color.NRGBA{0x40, 0x40, 0x40, 0xff}
	colorWater   = color.NRGBA{0x20, 0x60, 0xff, 0xff}
)

// Opts represents the options available for the console.
type Opts struct {
	// W is where the strip is written. nil means stdout.
	W       io.Writer
	Palette *ansi256.Palette
	// Width is the number of cells of the humidity gauge.
	Width int
}

// DefaultOpts is a 20 cells gauge on stdout.
var DefaultOpts = Opts{Width: 20}

// Dev is a status line on a terminal.
type Dev struct {
	w       io.Writer
	palette ansi256.Palette
	width   int

	mu  sync.Mutex
	buf bytes.Buffer
}

// New returns a Dev that displays at the console.
func New(opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	d := &Dev{w: opts.W, palette: *p, width: opts.Width}
	if d.w == nil {
		d.w = colorable.NewColorableStdout()
	}
	if d.width <= 0 {
		d.width = DefaultOpts.Width
	}
	return d
}

func (d *Dev) String() string {
	return "Console"
}

// Halt implements conn.Resource.
//
// It ends the line and resets the colors so the terminal is not corrupted.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := io.WriteString(d.w, "\n\033[0m")
	return err
}

// ShowMeasurement draws a temperature swatch, a humidity gauge and the
// values.
func (d *Dev) ShowMeasurement(m sht3x.Measurement) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin()
	if !m.Valid {
		d.blocks(colorNone, 1+d.width)
		return d.end("no reading")
	}
	d.blocks(temperatureColor(m.Temperature), 1)
	filled := int(m.Humidity*float64(d.width)/100 + 0.5)
	filled = max(0, min(filled, d.width))
	d.blocks(colorWater, filled)
	d.blocks(colorNone, d.width-filled)
	return d.end(fmt.Sprintf("%.2f°C %.2f%%RH", m.Temperature, m.Humidity))
}

// ShowCode draws the result of a fingerprint operation.
func (d *Dev) ShowCode(op string, c fingerprint.Code) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin()
	d.blocks(codeColor(c), 1)
	return d.end(fmt.Sprintf("%s: %s", op, c))
}

// ShowSearch draws the result of a library search.
func (d *Dev) ShowSearch(r fingerprint.SearchResult) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin()
	d.blocks(codeColor(r.Code), 1)
	if r.Code != fingerprint.CodeOK {
		return d.end(fmt.Sprintf("search: %s", r.Code))
	}
	return d.end(fmt.Sprintf("match in slot %d, score %d", r.Page.Slot(), r.Score))
}

func (d *Dev) begin() {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
}

func (d *Dev) blocks(c color.NRGBA, n int) {
	b := d.palette.Block(c)
	for range n {
		_, _ = d.buf.WriteString(b)
	}
}

func (d *Dev) end(text string) error {
	_, _ = d.buf.WriteString("\033[0m ")
	_, _ = d.buf.WriteString(text)
	// Clear what a longer previous line left.
	_, _ = d.buf.WriteString("\033[K")
	_, err := d.buf.WriteTo(d.w)
	return err
}

func codeColor(c fingerprint.Code) color.NRGBA {
	switch c {
	case fingerprint.CodeOK:
		return colorOK
	case fingerprint.CodeNoResponse:
		return colorNone
	default:
		return colorFailure
	}
}

// temperatureColor goes from blue at 0°C to red at 40°C.
func temperatureColor(t float64) color.NRGBA {
	f := max(0, min(t/40, 1))
	r := byte(255 * f)
	return color.NRGBA{r, 0, 255 - r, 255}
}
