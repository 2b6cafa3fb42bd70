// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package roomguard is a container for the drivers of a room access panel:
// the SHT3x temperature/humidity sensor, on a hardware or a bit-banged I²C
// bus, and the EF01 protocol fingerprint module on a serial port.
//
// See cmd/roomprobe for a tool exercising them from a host.
package roomguard
