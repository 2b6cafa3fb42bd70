// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// sht3x is a package for interfacing with the Sensirion SHT-30, SHT-31 and
// SHT-35 sensors in single shot mode.
//
// # Datasheet
//
// https://sensirion.com/media/documents/213E6A3B/63A5A569/Datasheet_SHT3x_DIS.pdf
//
// # Measurement
//
// A measurement is a two byte command followed, after the conversion time,
// by a six byte read: temperature MSB, LSB, CRC, humidity MSB, LSB, CRC. Each
// CRC covers the two bytes before it.
//
//	T  = -45 + 175 * count / 65535 (°C)
//	RH = 100 * count / 65535 (%RH)
//
// The device works on any i2c.Bus, including the bit-banged softi2c.Bus.
package sht3x

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/GermanBionicSystems/roomguard/common"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Single shot measurement commands. The Stretch variants let the sensor hold
// SCL low until the conversion is done.
const (
	MeasureHighRepeatability          uint16 = 0x2400
	MeasureMediumRepeatability        uint16 = 0x240b
	MeasureLowRepeatability           uint16 = 0x2416
	MeasureHighRepeatabilityStretch   uint16 = 0x2c06
	MeasureMediumRepeatabilityStretch uint16 = 0x2c0d
	MeasureLowRepeatabilityStretch    uint16 = 0x2c10

	// Default I2C Address. 0x45 when the ADDR pin is high.
	DefaultAddress i2c.Addr = 0x44
)

const (
	cmdSoftReset   uint16 = 0x30a2
	cmdReadStatus  uint16 = 0xf32d
	cmdClearStatus uint16 = 0x3041
	cmdHeaterOn    uint16 = 0x306d
	cmdHeaterOff   uint16 = 0x3066

	countDivisor = float64(65535)

	minSampleDuration = 20 * time.Millisecond
)

// Status is the sensor status register.
type Status uint16

const (
	StatusAlertPending     Status = 1 << 15
	StatusHeaterOn         Status = 1 << 13
	StatusHumidityAlert    Status = 1 << 11
	StatusTemperatureAlert Status = 1 << 10
	StatusResetDetected    Status = 1 << 4
	StatusCommandFailed    Status = 1 << 1
	// Set if the checksum of the last write was wrong.
	StatusWriteCRCFailed Status = 1 << 0
)

// ErrChecksumMismatch is returned when a CRC8 of the read data is wrong.
var ErrChecksumMismatch = errors.New("sht3x: crc mismatch")

// Measurement is the result of one reading. Temperature and Humidity are only
// meaningful when Valid is true.
type Measurement struct {
	// Temperature in °C.
	Temperature float64
	// Humidity in %RH.
	Humidity float64
	Valid    bool
}

// Opts holds the device configuration.
type Opts struct {
	Addr i2c.Addr
	// Command is the measurement command. Sensor variants and boards differ
	// in which one they use, so it's configurable.
	Command uint16
	// MeasureDelay is the wait between the command and the read.
	MeasureDelay time.Duration
	// Clock is used for the waits. nil means common.SystemClock.
	Clock common.Clock
	// Logger receives debug traces. nil means slog.Default().
	Logger *slog.Logger
}

// DefaultOpts uses the high repeatability command. The typical conversion
// time is 12.5ms.
var DefaultOpts = Opts{
	Addr:         DefaultAddress,
	Command:      MeasureHighRepeatability,
	MeasureDelay: 15 * time.Millisecond,
}

// Dev represents a SHT-3X series temperature/humidity sensor
type Dev struct {
	d            *i2c.Dev
	command      uint16
	measureDelay time.Duration
	clk          common.Clock
	log          *slog.Logger

	shutdown chan struct{}
	mu       sync.Mutex
}

// New returns a device on bus. opts may be nil for DefaultOpts; zero fields
// take their default.
func New(bus i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.Addr == 0 {
		o.Addr = DefaultOpts.Addr
	}
	if o.Addr > 0x7f {
		return nil, fmt.Errorf("sht3x: invalid address 0x%x", uint16(o.Addr))
	}
	if o.Command == 0 {
		o.Command = DefaultOpts.Command
	}
	if o.MeasureDelay <= 0 {
		o.MeasureDelay = DefaultOpts.MeasureDelay
	}
	if o.Clock == nil {
		o.Clock = common.SystemClock
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	dev := &Dev{
		d:            &i2c.Dev{Bus: bus, Addr: uint16(o.Addr)},
		command:      o.Command,
		measureDelay: o.MeasureDelay,
		clk:          o.Clock,
		log:          o.Logger,
	}
	return dev, nil
}

// SendCommand writes the 16 bit command MSB first. It returns an error if any
// of the address or command bytes was not acknowledged.
func (dev *Dev) SendCommand(command uint16) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.sendCommand(command)
}

func (dev *Dev) sendCommand(command uint16) error {
	if err := dev.d.Tx([]byte{byte(command >> 8), byte(command)}, nil); err != nil {
		return fmt.Errorf("sht3x: error sending command 0x%04x %w", command, err)
	}
	return nil
}

// readWords reads count CRC protected words.
func (dev *Dev) readWords(count int) ([]uint16, error) {
	r := make([]byte, 3*count)
	if err := dev.d.Tx(nil, r); err != nil {
		return nil, fmt.Errorf("sht3x: error reading %w", err)
	}
	words := make([]uint16, count)
	for ix := range count {
		chunk := r[3*ix : 3*ix+3]
		if !common.CheckCRC8(chunk[:2], chunk[2]) {
			dev.log.Debug("sht3x crc mismatch", slog.Int("word", ix), slog.String("bytes", fmt.Sprintf("% x", chunk)))
			return nil, fmt.Errorf("%w on word %d", ErrChecksumMismatch, ix)
		}
		words[ix] = uint16(chunk[0])<<8 | uint16(chunk[1])
	}
	return words, nil
}

// convert the count to a temperature in °C.
func countToTemp(count uint16) float64 {
	// T=-45+175*(count/countDivisor)
	return -45.0 + 175.0*(float64(count)/countDivisor)
}

// convert the count to a relative humidity in %.
func countToHumidity(count uint16) float64 {
	return 100.0 * (float64(count) / countDivisor)
}

// Read sends the measurement command, waits for the conversion and reads the
// result. No retry is done.
func (dev *Dev) Read() (Measurement, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.sendCommand(dev.command); err != nil {
		return Measurement{}, err
	}
	dev.clk.Sleep(dev.measureDelay)
	words, err := dev.readWords(2)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{
		Temperature: countToTemp(words[0]),
		Humidity:    countToHumidity(words[1]),
		Valid:       true,
	}, nil
}

// ReadTempAndHumidity is Read with every failure folded into Valid=false.
// It's meant for callers that only need to know whether to use the value.
func (dev *Dev) ReadTempAndHumidity() Measurement {
	m, err := dev.Read()
	if err != nil {
		dev.log.Debug("sht3x reading invalid", slog.Any("error", err))
		return Measurement{}
	}
	return m
}

// Precision returns the smallest change in readings the device can produce.
// Implements physic.SenseEnv.
func (dev *Dev) Precision(e *physic.Env) {
	e.Temperature = physic.Kelvin / 100
	e.Humidity = physic.PercentRH / 100
	e.Pressure = 0
}

// Sense reads temperature and humidity from the device.
func (dev *Dev) Sense(e *physic.Env) error {
	e.Pressure = 0
	m, err := dev.Read()
	if err != nil {
		return err
	}
	e.Temperature = physic.Temperature(m.Temperature*float64(physic.Kelvin)) + physic.ZeroCelsius
	e.Humidity = physic.RelativeHumidity(m.Humidity * float64(physic.PercentRH))
	return nil
}

// SenseContinuous continuously reads from the device and sends the output
// to the returned channel. To terminate the read, call Dev.Halt()
func (dev *Dev) SenseContinuous(duration time.Duration) (<-chan physic.Env, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil {
		return nil, errors.New("sht3x: SenseContinuous already running")
	}
	if duration < minSampleDuration {
		return nil, errors.New("sht3x: sample interval is < device sample rate")
	}
	shutdown := make(chan struct{})
	dev.shutdown = shutdown
	ch := make(chan physic.Env, 16)
	go func() {
		ticker := time.NewTicker(duration)
		defer ticker.Stop()
		defer close(ch)
		for {
			select {
			case <-shutdown:
				return
			case <-ticker.C:
				env := physic.Env{}
				if err := dev.Sense(&env); err == nil {
					select {
					case ch <- env:
					case <-shutdown:
						return
					}
				}
			}
		}
	}()
	return ch, nil
}

// Halt terminates a SenseContinuous command if running. Implements
// conn.Resource
func (dev *Dev) Halt() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.shutdown != nil {
		close(dev.shutdown)
		dev.shutdown = nil
	}
	return nil
}

// Reset issues a soft-reset to the device
func (dev *Dev) Reset() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	err := dev.sendCommand(cmdSoftReset)
	dev.clk.Sleep(2 * time.Millisecond)
	return err
}

// Status reads the status register.
func (dev *Dev) Status() (Status, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if err := dev.sendCommand(cmdReadStatus); err != nil {
		return 0, err
	}
	words, err := dev.readWords(1)
	if err != nil {
		return 0, err
	}
	return Status(words[0]), nil
}

// ClearStatus clears the alert and reset flags of the status register.
func (dev *Dev) ClearStatus() error {
	return dev.SendCommand(cmdClearStatus)
}

// SetHeater turns the internal heater on or off. The heater is meant for
// plausibility checks and condensing environments.
func (dev *Dev) SetHeater(on bool) error {
	if on {
		return dev.SendCommand(cmdHeaterOn)
	}
	return dev.SendCommand(cmdHeaterOff)
}

// String returns a string representation of the device.
func (dev *Dev) String() string {
	return fmt.Sprintf("sht3x{%s}", dev.d)
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
