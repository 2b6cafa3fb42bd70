// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages: the
// checksums of the sensor and fingerprint protocols and the clock used for
// bounded waits.
package common

// crc8Poly is x^8 + x^5 + x^4 + 1.
const crc8Poly = 0x31

// CRC8 calculates the 8-bit CRC of the byte slice parameter and returns the
// calculated value. CRC bytes are used in sensors from TI and Sensirion.
//
// The seed is 0xff, bits are processed MSB first and there is no final XOR.
func CRC8(bytes []byte) byte {
	var crc byte = 0xff
	for _, val := range bytes {
		crc ^= val
		for range 8 {
			if (crc & 0x80) == 0 {
				crc <<= 1
			} else {
				crc = (byte)((crc << 1) ^ crc8Poly)
			}
		}
	}
	return crc
}

// CheckCRC8 returns true if sum is the CRC8 of bytes.
func CheckCRC8(bytes []byte, sum byte) bool {
	return CRC8(bytes) == sum
}

// Sum16 returns the unsigned sum of every byte of every slice, modulo 65536.
func Sum16(chunks ...[]byte) uint16 {
	var sum uint16
	for _, chunk := range chunks {
		for _, b := range chunk {
			sum += uint16(b)
		}
	}
	return sum
}
