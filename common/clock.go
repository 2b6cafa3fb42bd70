// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import "time"

// Clock is the time source used by the drivers for settle delays and
// timeouts. Now must be monotonic.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the Clock backed by package time.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// Poll calls ready until it returns true or until timeout has elapsed on clk,
// sleeping interval between attempts. ready is always called at least once.
//
// Returns false on timeout. The elapsed time is then at least timeout.
func Poll(clk Clock, timeout, interval time.Duration, ready func() bool) bool {
	deadline := clk.Now().Add(timeout)
	for {
		if ready() {
			return true
		}
		if !clk.Now().Before(deadline) {
			return false
		}
		clk.Sleep(interval)
	}
}
