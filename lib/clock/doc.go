// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for the scheduler loop, the field
// exporter, and the sensor staleness checks.
//
// Code that would otherwise call time.Now, time.After, or
// time.NewTicker takes a [Clock] instead. The daemon wires [Real]; tests
// wire [Fake] and drive cycles with [FakeClock.Advance]:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	loop, _ := scheduler.New(scheduler.Options{Clock: c, ...})
//	go loop.Run(ctx)
//	c.WaitForTimers(1)         // the loop's ticker is registered
//	c.Advance(5 * time.Second) // exactly one more cycle runs
//
// WaitForTimers closes the race between a goroutine registering its
// ticker and the test advancing time past it.
package clock
