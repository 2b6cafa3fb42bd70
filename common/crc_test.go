// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "testing"

func TestCRC8(t *testing.T) {
	var tests = []struct {
		bytes  []byte
		result byte
	}{
		{bytes: []byte{0xbe, 0xef}, result: 0x92},
		{bytes: []byte{0x01, 0xa4}, result: 0x4d},
		{bytes: []byte{0xab, 0xcd}, result: 0x6f},
		{bytes: []byte{0x65, 0x6a}, result: 0xc3},
		{bytes: []byte{0x64, 0x79}, result: 0x27},
		{bytes: []byte{0x5c, 0x38}, result: 0xae},
		{bytes: []byte{0x00, 0x00}, result: 0x81},
		{bytes: []byte{}, result: 0xff},
	}
	for _, test := range tests {
		res := CRC8(test.bytes)
		if res != test.result {
			t.Errorf("CRC8(%#v)!=0x%x received 0x%x", test.bytes, test.result, res)
		}
	}
}

// Every single bit flip of the data or of the checksum has to be detected.
func TestCheckCRC8BitFlips(t *testing.T) {
	inputs := [][]byte{
		{0x00, 0x00},
		{0xbe, 0xef},
		{0x64, 0x79},
		{0xff, 0xff},
		{0x12, 0x34, 0x56},
	}
	for _, in := range inputs {
		sum := CRC8(in)
		if !CheckCRC8(in, sum) {
			t.Errorf("CheckCRC8(%#v, 0x%x) returned false", in, sum)
		}
		for ix := range in {
			for bit := range 8 {
				flipped := append([]byte(nil), in...)
				flipped[ix] ^= 1 << bit
				if CheckCRC8(flipped, sum) {
					t.Errorf("flip of byte %d bit %d in %#v not detected", ix, bit, in)
				}
			}
		}
		for bit := range 8 {
			if CheckCRC8(in, sum^(1<<bit)) {
				t.Errorf("flip of checksum bit %d for %#v not detected", bit, in)
			}
		}
	}
}

func TestSum16(t *testing.T) {
	var tests = []struct {
		chunks [][]byte
		result uint16
	}{
		{chunks: nil, result: 0},
		{chunks: [][]byte{{0x01}, {0x00, 0x03}, {0x01}}, result: 0x05},
		{chunks: [][]byte{{0x01, 0x00, 0x08, 0x04, 0x01, 0x00, 0x00, 0xff, 0xff}}, result: 0x020c},
		// 300 bytes of 0xff wrap around.
		{chunks: [][]byte{make300()}, result: uint16((300 * 0xff) % 65536)},
	}
	for _, test := range tests {
		if res := Sum16(test.chunks...); res != test.result {
			t.Errorf("Sum16(%#v)=0x%x expected 0x%x", test.chunks, res, test.result)
		}
	}
}

func make300() []byte {
	b := make([]byte, 300)
	for ix := range b {
		b[ix] = 0xff
	}
	return b
}
