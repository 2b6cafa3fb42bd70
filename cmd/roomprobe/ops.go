// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sort"

	"github.com/GermanBionicSystems/roomguard/fingerprint"
)

// operation is what roomprobe does once the devices are up.
type operation string

const (
	opSense    operation = "sense"
	opEnroll   operation = "enroll"
	opDelete   operation = "delete"
	opIdentify operation = "identify"
	opEmpty    operation = "empty"
	opCancel   operation = "cancel"
)

var operations = map[operation]bool{
	opSense:    true,
	opEnroll:   true,
	opDelete:   true,
	opIdentify: true,
	opEmpty:    true,
	opCancel:   true,
}

func operationNames() []string {
	names := make([]string, 0, len(operations))
	for o := range operations {
		names = append(names, string(o))
	}
	sort.Strings(names)
	return names
}

func (o *operation) String() string {
	return string(*o)
}

// Set implements flag.Value.
func (o *operation) Set(s string) error {
	if !operations[operation(s)] {
		return fmt.Errorf("unknown operation %q", s)
	}
	*o = operation(s)
	return nil
}

// display is the part of console.Dev used to report results.
type display interface {
	ShowCode(op string, c fingerprint.Code) error
	ShowSearch(r fingerprint.SearchResult) error
}

// runFingerprint runs op on dev. A confirmation code other than OK is
// reported as an error once displayed.
func runFingerprint(dev *fingerprint.Dev, out display, op operation, slot int) error {
	if op == opIdentify {
		r, err := dev.Identify()
		if showErr := out.ShowSearch(r); showErr != nil {
			return showErr
		}
		return err
	}
	run, err := command(dev, op, slot)
	if err != nil {
		return err
	}
	code, err := run()
	if showErr := out.ShowCode(string(op), code); showErr != nil {
		return showErr
	}
	if err != nil {
		return err
	}
	if code != fingerprint.CodeOK {
		return &fingerprint.CodeError{Operation: string(op), Code: code}
	}
	return nil
}

// command returns the module command implementing op.
func command(dev *fingerprint.Dev, op operation, slot int) (func() (fingerprint.Code, error), error) {
	switch op {
	case opEnroll, opDelete:
		page, err := fingerprint.SlotToPage(slot)
		if err != nil {
			return nil, err
		}
		if op == opEnroll {
			return func() (fingerprint.Code, error) { return dev.AutoEnroll(page) }, nil
		}
		return func() (fingerprint.Code, error) { return dev.Delete(page) }, nil
	case opEmpty:
		return dev.Empty, nil
	case opCancel:
		return dev.Cancel, nil
	default:
		return nil, fmt.Errorf("operation %q doesn't use the fingerprint module", op)
	}
}
