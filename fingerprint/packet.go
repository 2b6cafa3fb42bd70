// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fingerprint

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/roomguard/common"
)

// PacketID is the packet identifier field.
type PacketID byte

const (
	PacketCommand PacketID = 0x01
	PacketData    PacketID = 0x02
	PacketAck     PacketID = 0x07
	PacketEnd     PacketID = 0x08
)

// Command opcodes, first byte of a command payload.
const (
	OpGetImage   byte = 0x01
	OpGetChar    byte = 0x02
	OpSearch     byte = 0x04
	OpDelete     byte = 0x0c
	OpEmpty      byte = 0x0d
	OpCancel     byte = 0x30
	OpAutoEnroll byte = 0x31
)

const (
	// Header starts every packet.
	Header uint16 = 0xef01
	// BroadcastAddress is the factory default module address.
	BroadcastAddress uint32 = 0xffffffff

	// Offsets in a packet.
	offsetID     = 6
	offsetLength = 7
	offsetCode   = 9

	// header + address + id + length.
	headerSize        = 9
	// Smallest acknowledgement: the header and the confirmation code.
	minResponseSize   = offsetCode + 1
	// No acknowledgement is longer, a larger length field is garbled.
	maxResponseLength = 0x100

	// Number of presses requested for an enrollment, and the enroll flags
	// (no LED control, pre-processing, no per-step reply, no overwrite).
	enrollPresses = 0x04
	enrollFlags   = 0x0016
)

var (
	// ErrMalformedResponse is returned when the captured bytes are too short
	// or not an acknowledgement packet.
	ErrMalformedResponse = errors.New("fingerprint: malformed response")
	// ErrChecksumMismatch is returned when a complete acknowledgement has a
	// wrong checksum.
	ErrChecksumMismatch = errors.New("fingerprint: checksum mismatch")
)

// PageID is a 0-based template slot in the module library.
type PageID uint16

// SlotToPage maps a 1-based slot as shown to users to a PageID.
func SlotToPage(slot int) (PageID, error) {
	if slot < 1 || slot > 0x10000 {
		return 0, fmt.Errorf("fingerprint: invalid slot %d", slot)
	}
	return PageID(slot - 1), nil
}

// Slot returns the 1-based slot number of p.
func (p PageID) Slot() int {
	return int(p) + 1
}

// Packet is a single protocol frame.
type Packet struct {
	Address uint32
	ID      PacketID
	Payload []byte
}

// Length returns the value of the length field: payload plus checksum.
func (p *Packet) Length() uint16 {
	return uint16(len(p.Payload) + 2)
}

// Checksum is the 16 bit sum of the id, the two length bytes and the payload.
func (p *Packet) Checksum() uint16 {
	l := p.Length()
	return common.Sum16([]byte{byte(p.ID), byte(l >> 8), byte(l)}, p.Payload)
}

// Bytes serializes the packet, all multi-byte fields big endian.
func (p *Packet) Bytes() []byte {
	b := make([]byte, headerSize, headerSize+len(p.Payload)+2)
	binary.BigEndian.PutUint16(b[0:], Header)
	binary.BigEndian.PutUint32(b[2:], p.Address)
	b[offsetID] = byte(p.ID)
	binary.BigEndian.PutUint16(b[offsetLength:], p.Length())
	b = append(b, p.Payload...)
	return binary.BigEndian.AppendUint16(b, p.Checksum())
}

// BuildPacket returns the bytes of a packet to the broadcast address.
func BuildPacket(id PacketID, payload []byte) []byte {
	p := Packet{Address: BroadcastAddress, ID: id, Payload: payload}
	return p.Bytes()
}

func commandPacket(payload ...byte) []byte {
	return BuildPacket(PacketCommand, payload)
}

// GetImagePacket captures a finger image into the image buffer.
func GetImagePacket() []byte {
	return commandPacket(OpGetImage)
}

// GetCharPacket extracts features from the image buffer into the character
// buffer buf, 1 or 2.
func GetCharPacket(buf byte) []byte {
	return commandPacket(OpGetChar, buf)
}

// AutoEnrollPacket enrolls a finger into page with the module driving the
// whole capture sequence.
func AutoEnrollPacket(page PageID) []byte {
	return commandPacket(OpAutoEnroll, byte(page>>8), byte(page), enrollPresses, byte(enrollFlags>>8), byte(enrollFlags))
}

// DeletePacket removes count templates starting at page.
func DeletePacket(page PageID, count uint16) []byte {
	return commandPacket(OpDelete, byte(page>>8), byte(page), byte(count>>8), byte(count))
}

// SearchPacket searches the library pages [start, start+count) for the
// template in character buffer buf.
func SearchPacket(buf byte, start PageID, count uint16) []byte {
	return commandPacket(OpSearch, buf, byte(start>>8), byte(start), byte(count>>8), byte(count))
}

// EmptyPacket wipes every template of the library.
func EmptyPacket() []byte {
	return commandPacket(OpEmpty)
}

// CancelPacket aborts the operation in progress, e.g. an enrollment.
func CancelPacket() []byte {
	return commandPacket(OpCancel)
}

// Response is a parsed acknowledgement.
type Response struct {
	Code Code
	// Params holds the bytes following the confirmation code, without the
	// checksum.
	Params []byte
}

// ParseResponse parses an acknowledgement packet captured from the module.
//
// On failure the returned Response has the CodeNoResponse code. The checksum
// is only verified when the whole packet was captured.
func ParseResponse(b []byte) (Response, error) {
	if len(b) < minResponseSize {
		return Response{Code: CodeNoResponse}, fmt.Errorf("%w: %d bytes", ErrMalformedResponse, len(b))
	}
	if id := PacketID(b[offsetID]); id != PacketAck {
		return Response{Code: CodeNoResponse}, fmt.Errorf("%w: packet id 0x%02x", ErrMalformedResponse, byte(id))
	}
	length := int(binary.BigEndian.Uint16(b[offsetLength:]))
	if length < 3 || length > maxResponseLength {
		return Response{Code: CodeNoResponse}, fmt.Errorf("%w: length %d", ErrMalformedResponse, length)
	}
	end := headerSize + length - 2
	if len(b) >= end+2 {
		want := binary.BigEndian.Uint16(b[end:])
		if got := common.Sum16(b[offsetID:end]); got != want {
			return Response{Code: CodeNoResponse}, fmt.Errorf("%w: got 0x%04x, expected 0x%04x", ErrChecksumMismatch, got, want)
		}
	}
	if end > len(b) {
		end = len(b)
	}
	r := Response{Code: Code(b[offsetCode])}
	if end > offsetCode+1 {
		r.Params = append([]byte(nil), b[offsetCode+1:end]...)
	}
	return r, nil
}
