// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Check runs stamp every Evidence, Evaluation, and Alert row with the
// run's timestamp, and the scheduler sleeps until the next cron
// occurrence. Both read time through a Clock so that tests can pin the
// run timestamp and drive the scheduler deterministically:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	runner := checkrun.New(checkrun.Config{Clock: c, ...})
//	// ... start the scheduler in a goroutine ...
//	c.WaitForTimers(1)     // scheduler is waiting for its next slot
//	c.Advance(time.Hour)   // fire it
//
// Production code uses Real().
package clock
