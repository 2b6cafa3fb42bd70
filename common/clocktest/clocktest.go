// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package clocktest provides a manually advanced common.Clock, so that
// timeouts and settle delays can be tested without waiting.
package clocktest

import (
	"sync"
	"time"

	"github.com/GermanBionicSystems/roomguard/common"
)

// Clock is a common.Clock whose Sleep advances the time instantly.
//
// The zero value starts at the Unix epoch.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	slept  time.Duration
	sleeps int
}

// New returns a Clock starting at start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now implements common.Clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now.IsZero() {
		c.now = time.Unix(0, 0)
	}
	return c.now
}

// Sleep implements common.Clock.
func (c *Clock) Sleep(d time.Duration) {
	c.Advance(d)
	c.mu.Lock()
	c.sleeps++
	c.mu.Unlock()
}

// Advance moves the clock forward by d without counting as a sleep.
func (c *Clock) Advance(d time.Duration) {
	if d < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now.IsZero() {
		c.now = time.Unix(0, 0)
	}
	c.now = c.now.Add(d)
	c.slept += d
}

// Elapsed returns the total time the clock was moved forward.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// Sleeps returns the number of Sleep calls.
func (c *Clock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}

var _ common.Clock = &Clock{}
