// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sht3x

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/GermanBionicSystems/roomguard/common/clocktest"
	"github.com/GermanBionicSystems/roomguard/softi2c"
	"github.com/GermanBionicSystems/roomguard/softi2c/softi2ctest"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

const addr = uint16(DefaultAddress)

var recordingData = map[string][]i2ctest.IO{
	"TestRead": {
		{Addr: addr, W: []byte{0x24, 0x00}},
		{Addr: addr, R: []byte{0x64, 0x79, 0x27, 0x5c, 0x38, 0xae}},
	},
	"TestReadStretchCommand": {
		{Addr: addr, W: []byte{0x2c, 0x06}},
		{Addr: addr, R: []byte{0x66, 0x66, 0x93, 0x80, 0x00, 0xa2}},
	},
	"TestReadBadTemperatureCRC": {
		{Addr: addr, W: []byte{0x24, 0x00}},
		{Addr: addr, R: []byte{0x64, 0x79, 0x28, 0x5c, 0x38, 0xae}},
	},
	"TestReadBadHumidityCRC": {
		{Addr: addr, W: []byte{0x24, 0x00}},
		{Addr: addr, R: []byte{0x64, 0x79, 0x27, 0x5c, 0x39, 0xae}},
	},
	"TestSense": {
		{Addr: addr, W: []byte{0x24, 0x00}},
		{Addr: addr, R: []byte{0x66, 0x66, 0x93, 0x80, 0x00, 0xa2}},
	},
	"TestStatus": {
		{Addr: addr, W: []byte{0xf3, 0x2d}},
		{Addr: addr, R: []byte{0x80, 0x10, 0xe1}},
		{Addr: addr, W: []byte{0x30, 0x41}},
	},
	"TestReset": {
		{Addr: addr, W: []byte{0x30, 0xa2}},
	},
	"TestHeater": {
		{Addr: addr, W: []byte{0x30, 0x6d}},
		{Addr: addr, W: []byte{0x30, 0x66}},
	},
}

func getDev(testName string, opts *Opts) (*Dev, *clocktest.Clock, error) {
	clk := &clocktest.Clock{}
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	o.Clock = clk
	dev, err := New(&i2ctest.Playback{Ops: recordingData[testName], DontPanic: true}, &o)
	return dev, clk, err
}

func TestNew(t *testing.T) {
	if _, err := New(&i2ctest.Playback{}, &Opts{Addr: 0x80}); err == nil {
		t.Error("New() accepted an invalid address")
	}
	dev, err := New(&i2ctest.Playback{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if dev.command != MeasureHighRepeatability || dev.measureDelay != 15*time.Millisecond {
		t.Errorf("unexpected defaults command=0x%04x delay=%s", dev.command, dev.measureDelay)
	}
	if len(dev.String()) == 0 {
		t.Error("string returned empty")
	}
}

func TestCountToTemp(t *testing.T) {
	var tests = []struct {
		count uint16
		want  float64
	}{
		{0, -45},
		{0xffff, 130},
		{0x6666, 25},
		{0x656a, 24.327},
		{0x6479, 23.684},
	}
	for _, test := range tests {
		if got := countToTemp(test.count); math.Abs(got-test.want) > 0.01 {
			t.Errorf("countToTemp(0x%04x)=%f expected %f", test.count, got, test.want)
		}
	}
}

func TestCountToHumidity(t *testing.T) {
	var tests = []struct {
		count uint16
		want  float64
	}{
		{0, 0},
		{0xffff, 100},
		{0x8000, 50},
		{0x5c38, 36.023},
	}
	for _, test := range tests {
		if got := countToHumidity(test.count); math.Abs(got-test.want) > 0.01 {
			t.Errorf("countToHumidity(0x%04x)=%f expected %f", test.count, got, test.want)
		}
	}
}

func TestRead(t *testing.T) {
	dev, clk, err := getDev(t.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	m, err := dev.Read()
	if err != nil {
		t.Fatal(err)
	}
	want := Measurement{Temperature: 23.684, Humidity: 36.023, Valid: true}
	if diff := cmp.Diff(want, m, cmpopts.EquateApprox(0, 0.01)); diff != "" {
		t.Errorf("Read() mismatch (-want +got):\n%s", diff)
	}
	if clk.Elapsed() < DefaultOpts.MeasureDelay {
		t.Errorf("read after %s, before the conversion delay", clk.Elapsed())
	}
}

func TestReadStretchCommand(t *testing.T) {
	dev, _, err := getDev(t.Name(), &Opts{Command: MeasureHighRepeatabilityStretch})
	if err != nil {
		t.Fatal(err)
	}
	m := dev.ReadTempAndHumidity()
	want := Measurement{Temperature: 25, Humidity: 50, Valid: true}
	if diff := cmp.Diff(want, m, cmpopts.EquateApprox(0, 0.01)); diff != "" {
		t.Errorf("ReadTempAndHumidity() mismatch (-want +got):\n%s", diff)
	}
}

func TestReadBadTemperatureCRC(t *testing.T) {
	dev, _, err := getDev(t.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.Read(); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Read() returned %v, expected ErrChecksumMismatch", err)
	}
}

func TestReadBadHumidityCRC(t *testing.T) {
	dev, _, err := getDev(t.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	m := dev.ReadTempAndHumidity()
	if m.Valid {
		t.Errorf("ReadTempAndHumidity() returned a valid result %+v for a bad crc", m)
	}
}

func TestSense(t *testing.T) {
	dev, _, err := getDev(t.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	env := &physic.Env{}
	if err = dev.Sense(env); err != nil {
		t.Fatal(err)
	}
	if diff := math.Abs(env.Temperature.Celsius() - 25); diff > 0.01 {
		t.Errorf("temperature %s expected 25°C", env.Temperature)
	}
	expected := 50 * physic.PercentRH
	if diff := env.Humidity - expected; diff > physic.MilliRH || diff < -physic.MilliRH {
		t.Errorf("humidity %s expected %s", env.Humidity, expected)
	}
	dev.Precision(env)
	if env.Temperature != physic.Kelvin/100 || env.Humidity != physic.PercentRH/100 {
		t.Errorf("unexpected precision %#v", env)
	}
}

func TestSenseContinuous(t *testing.T) {
	dev, _, err := getDev(t.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = dev.SenseContinuous(time.Millisecond); err == nil {
		t.Error("SenseContinuous() doesn't return an error on too short a duration.")
	}
	ch, err := dev.SenseContinuous(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = dev.SenseContinuous(time.Second); err == nil {
		t.Error("expected an error for attempting concurrent SenseContinuous")
	}
	if err = dev.Halt(); err != nil {
		t.Fatal(err)
	}
	for range ch {
	}
}

func TestStatus(t *testing.T) {
	dev, _, err := getDev(t.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	status, err := dev.Status()
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusAlertPending|StatusResetDetected {
		t.Errorf("status 0x%04x expected 0x8010", uint16(status))
	}
	if err = dev.ClearStatus(); err != nil {
		t.Error(err)
	}
}

func TestReset(t *testing.T) {
	dev, _, err := getDev(t.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = dev.Reset(); err != nil {
		t.Error(err)
	}
}

func TestHeater(t *testing.T) {
	dev, _, err := getDev(t.Name(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = dev.SetHeater(true); err != nil {
		t.Error(err)
	}
	if err = dev.SetHeater(false); err != nil {
		t.Error(err)
	}
}

// getSoftDev returns a device on a bit-banged bus wired to a simulated sensor.
func getSoftDev(t *testing.T, target softi2ctest.Target) (*Dev, *softi2ctest.Wire) {
	t.Helper()
	clk := &clocktest.Clock{}
	wire := softi2ctest.NewWire(target)
	bus, err := softi2c.New(wire.SCL(), wire.SDA(), &softi2c.Opts{Clock: clk})
	if err != nil {
		t.Fatal(err)
	}
	dev, err := New(bus, &Opts{Clock: clk})
	if err != nil {
		t.Fatal(err)
	}
	return dev, wire
}

func TestSoftBusRead(t *testing.T) {
	dev, wire := getSoftDev(t, softi2ctest.Target{
		Addr: addr,
		Data: []byte{0x64, 0x79, 0x27, 0x5c, 0x38, 0xae},
	})
	m := dev.ReadTempAndHumidity()
	want := Measurement{Temperature: 23.684, Humidity: 36.023, Valid: true}
	if diff := cmp.Diff(want, m, cmpopts.EquateApprox(0, 0.01)); diff != "" {
		t.Errorf("ReadTempAndHumidity() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte{0x24, 0x00}, wire.Written()); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
	want2 := []softi2ctest.Condition{softi2ctest.Start, softi2ctest.Stop, softi2ctest.Start, softi2ctest.Stop}
	if diff := cmp.Diff(want2, wire.Conditions()); diff != "" {
		t.Errorf("conditions mismatch (-want +got):\n%s", diff)
	}
}

func TestSoftBusNoAck(t *testing.T) {
	dev, _ := getSoftDev(t, softi2ctest.Target{Addr: addr, NackAddress: true})
	m := dev.ReadTempAndHumidity()
	if m.Valid {
		t.Errorf("ReadTempAndHumidity() returned a valid result %+v without ACK", m)
	}
	_, err := dev.Read()
	if !errors.Is(err, softi2c.ErrAckMissing) {
		t.Errorf("Read() returned %v, expected softi2c.ErrAckMissing", err)
	}
	if err := dev.SendCommand(MeasureHighRepeatability); err == nil {
		t.Error("SendCommand() succeeded without ACK")
	}
}

func TestSoftBusBadCRC(t *testing.T) {
	dev, _ := getSoftDev(t, softi2ctest.Target{
		Addr: addr,
		Data: []byte{0x64, 0x79, 0x27, 0x5c, 0x38, 0x00},
	})
	if _, err := dev.Read(); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("Read() returned %v, expected ErrChecksumMismatch", err)
	}
}

func TestSoftBusStuckClock(t *testing.T) {
	dev, _ := getSoftDev(t, softi2ctest.Target{Addr: addr, Stretch: -1})
	if _, err := dev.Read(); !errors.Is(err, softi2c.ErrBusTimeout) {
		t.Errorf("Read() returned %v, expected softi2c.ErrBusTimeout", err)
	}
}
