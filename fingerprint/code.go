// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package fingerprint

import "fmt"

// Code is the confirmation code of an acknowledgement.
type Code byte

const (
	CodeOK             Code = 0x00
	CodePacketError    Code = 0x01
	CodeNoFinger       Code = 0x02
	CodeImageFail      Code = 0x03
	CodeImageMessy     Code = 0x06
	CodeFewFeatures    Code = 0x07
	CodeNoMatch        Code = 0x08
	CodeNotFound       Code = 0x09
	CodeMergeFail      Code = 0x0a
	CodeBadPage        Code = 0x0b
	CodeDeleteFail     Code = 0x10
	CodeEmptyFail      Code = 0x11
	CodeFlashError     Code = 0x18
	CodeLibraryFull    Code = 0x1f
	CodeTemplateExists Code = 0x22
	CodeLibraryEmpty   Code = 0x24
	CodeTimeout        Code = 0x26
	CodeAlreadyEnroll  Code = 0x27

	// CodeNoResponse is never sent by the module. It's returned when no
	// usable acknowledgement was received.
	CodeNoResponse Code = 0xff
)

var codeNames = map[Code]string{
	CodeOK:             "ok",
	CodePacketError:    "packet receive error",
	CodeNoFinger:       "no finger on the sensor",
	CodeImageFail:      "failed to capture image",
	CodeImageMessy:     "image too messy",
	CodeFewFeatures:    "too few feature points",
	CodeNoMatch:        "fingers do not match",
	CodeNotFound:       "no matching template",
	CodeMergeFail:      "failed to merge features",
	CodeBadPage:        "page id out of range",
	CodeDeleteFail:     "failed to delete template",
	CodeEmptyFail:      "failed to empty library",
	CodeFlashError:     "flash write error",
	CodeLibraryFull:    "library full",
	CodeTemplateExists: "template slot not empty",
	CodeLibraryEmpty:   "library empty",
	CodeTimeout:        "module timeout",
	CodeAlreadyEnroll:  "finger already enrolled",
	CodeNoResponse:     "no response",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return fmt.Sprintf("%s (0x%02x)", s, byte(c))
	}
	return fmt.Sprintf("code 0x%02x", byte(c))
}

// CodeError is a non-OK confirmation code as an error. It's returned by
// helpers chaining several commands, where the step matters.
type CodeError struct {
	Operation string
	Code      Code
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("fingerprint: %s failed: %s", e.Operation, e.Code)
}
