// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// roomprobe reads the room sensor and drives the fingerprint module of a
// room access panel from a host.
//
// The SHT3x is read either on a kernel I²C bus or on two GPIOs bit-banged by
// softi2c. The fingerprint module is reached on a serial port.
//
//	roomprobe -scl GPIO4 -sda GPIO3 -n 10
//	roomprobe -serial /dev/ttyUSB0 -op enroll -slot 3
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/GermanBionicSystems/roomguard/console"
	"github.com/GermanBionicSystems/roomguard/fingerprint"
	"github.com/GermanBionicSystems/roomguard/fingerprint/fpserial"
	"github.com/GermanBionicSystems/roomguard/sht3x"
	"github.com/GermanBionicSystems/roomguard/softi2c"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

func mainImpl() error {
	op := opSense
	flag.Var(&op, "op", "operation: "+strings.Join(operationNames(), ", "))
	sclName := flag.String("scl", "", "GPIO used as SCL; with -sda the bus is bit-banged")
	sdaName := flag.String("sda", "", "GPIO used as SDA")
	busName := flag.String("i2c", "", "I²C bus to use when not bit-banging")
	hz := flag.Int("hz", 0, "bit-banged bus speed in Hz, 0 for the default")
	addr := flag.Uint("addr", uint(sht3x.DefaultAddress), "SHT3x address")
	cmd := flag.Uint("cmd", uint(sht3x.MeasureHighRepeatability), "SHT3x measurement command, e.g. 0x2c06")
	count := flag.Int("n", 1, "number of readings, 0 for endless")
	interval := flag.Duration("interval", time.Second, "time between readings")
	port := flag.String("serial", "", "serial port of the fingerprint module")
	baud := flag.Int("baud", fpserial.DefaultBaud, "baud rate of the fingerprint module")
	slot := flag.Int("slot", 1, "1-based template slot for enroll and delete")
	list := flag.Bool("list", false, "list the serial ports and exit")
	verbose := flag.Bool("v", false, "log bus and frame traces")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *list {
		ports, err := fpserial.List()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return nil
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	out := console.New(nil)
	defer out.Halt()

	if op == opSense {
		bus, err := openBus(*sclName, *sdaName, *busName, physic.Frequency(*hz)*physic.Hertz)
		if err != nil {
			return err
		}
		defer bus.Close()
		if *addr > 0x7f || *cmd > 0xffff {
			return errors.New("-addr or -cmd out of range")
		}
		dev, err := sht3x.New(bus, &sht3x.Opts{Addr: i2c.Addr(*addr), Command: uint16(*cmd)})
		if err != nil {
			return err
		}
		return sense(dev, out, *count, *interval)
	}

	if *port == "" {
		return fmt.Errorf("-serial is required for -op %s", op)
	}
	p, err := fpserial.Open(*port, *baud)
	if err != nil {
		return err
	}
	defer p.Close()
	dev, err := fingerprint.New(p, nil)
	if err != nil {
		return err
	}
	return runFingerprint(dev, out, op, *slot)
}

// openBus returns a bit-banged bus when both pins are named, the kernel bus
// otherwise.
func openBus(sclName, sdaName, busName string, f physic.Frequency) (i2c.BusCloser, error) {
	if sclName == "" && sdaName == "" {
		return i2creg.Open(busName)
	}
	if sclName == "" || sdaName == "" {
		return nil, errors.New("-scl and -sda must be used together")
	}
	scl := gpioreg.ByName(sclName)
	if scl == nil {
		return nil, fmt.Errorf("gpio %q not found", sclName)
	}
	sda := gpioreg.ByName(sdaName)
	if sda == nil {
		return nil, fmt.Errorf("gpio %q not found", sdaName)
	}
	bus, err := softi2c.New(scl, sda, nil)
	if err != nil {
		return nil, err
	}
	if f != 0 {
		if err := bus.SetSpeed(f); err != nil {
			bus.Close()
			return nil, err
		}
	}
	return bus, nil
}

func sense(dev *sht3x.Dev, out *console.Dev, count int, interval time.Duration) error {
	for i := 0; count == 0 || i < count; i++ {
		if i != 0 {
			time.Sleep(interval)
		}
		if err := out.ShowMeasurement(dev.ReadTempAndHumidity()); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "roomprobe: %s.\n", err)
		os.Exit(1)
	}
}
