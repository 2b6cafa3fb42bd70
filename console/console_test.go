// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package console

import (
	"bytes"
	"strings"
	"testing"

	"github.com/GermanBionicSystems/roomguard/fingerprint"
	"github.com/GermanBionicSystems/roomguard/sht3x"
	"github.com/maruel/ansi256"
)

func TestShowMeasurement(t *testing.T) {
	var buf bytes.Buffer
	d := New(&Opts{W: &buf, Width: 10})
	if err := d.ShowMeasurement(sht3x.Measurement{Temperature: 20, Humidity: 50, Valid: true}); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	if !strings.HasPrefix(s, "\r\033[0m") {
		t.Errorf("line not redrawn in place: %q", s)
	}
	if !strings.HasSuffix(s, " 20.00°C 50.00%RH\033[K") {
		t.Errorf("unexpected text: %q", s)
	}
	water := ansi256.Default.Block(colorWater)
	if n := strings.Count(s, water); n != 5 {
		t.Errorf("gauge has %d filled cells, expected 5", n)
	}
	if !strings.Contains(s, ansi256.Default.Block(temperatureColor(20))) {
		t.Error("temperature swatch missing")
	}
}

func TestShowMeasurementInvalid(t *testing.T) {
	var buf bytes.Buffer
	d := New(&Opts{W: &buf, Width: 4})
	if err := d.ShowMeasurement(sht3x.Measurement{Temperature: 20}); err != nil {
		t.Fatal(err)
	}
	s := buf.String()
	if !strings.Contains(s, "no reading") || strings.Contains(s, "°C") {
		t.Errorf("unexpected output: %q", s)
	}
	if n := strings.Count(s, ansi256.Default.Block(colorNone)); n != 5 {
		t.Errorf("%d empty cells, expected 5", n)
	}
}

func TestShowCode(t *testing.T) {
	data := []struct {
		code fingerprint.Code
		want string
	}{
		{fingerprint.CodeOK, ansi256.Default.Block(colorOK)},
		{fingerprint.CodeNoFinger, ansi256.Default.Block(colorFailure)},
		{fingerprint.CodeNoResponse, ansi256.Default.Block(colorNone)},
	}
	for _, line := range data {
		var buf bytes.Buffer
		d := New(&Opts{W: &buf})
		if err := d.ShowCode("Delete", line.code); err != nil {
			t.Fatal(err)
		}
		s := buf.String()
		if !strings.Contains(s, line.want) {
			t.Errorf("%s: wrong color in %q", line.code, s)
		}
		if !strings.Contains(s, "Delete: "+line.code.String()) {
			t.Errorf("%s: wrong text in %q", line.code, s)
		}
	}
}

func TestShowSearch(t *testing.T) {
	var buf bytes.Buffer
	d := New(&Opts{W: &buf})
	if err := d.ShowSearch(fingerprint.SearchResult{Code: fingerprint.CodeOK, Page: 2, Score: 120}); err != nil {
		t.Fatal(err)
	}
	if s := buf.String(); !strings.Contains(s, "match in slot 3, score 120") {
		t.Errorf("unexpected output: %q", s)
	}
	buf.Reset()
	if err := d.ShowSearch(fingerprint.SearchResult{Code: fingerprint.CodeNotFound}); err != nil {
		t.Fatal(err)
	}
	if s := buf.String(); !strings.Contains(s, "search: "+fingerprint.CodeNotFound.String()) {
		t.Errorf("unexpected output: %q", s)
	}
}

func TestTemperatureColor(t *testing.T) {
	if c := temperatureColor(-20); c.R != 0 || c.B != 255 {
		t.Errorf("cold: %v", c)
	}
	if c := temperatureColor(100); c.R != 255 || c.B != 0 {
		t.Errorf("hot: %v", c)
	}
}

func TestHalt(t *testing.T) {
	var buf bytes.Buffer
	d := New(&Opts{W: &buf})
	if s := d.String(); s != "Console" {
		t.Errorf("String() = %q", s)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if s := buf.String(); s != "\n\033[0m" {
		t.Errorf("Halt() wrote %q", s)
	}
}
