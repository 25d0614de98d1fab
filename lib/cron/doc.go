// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cron parses check schedules and computes their next
// occurrence.
//
// A schedule is either a 5-field expression
//
//	minute hour day-of-month month day-of-week
//
// or one of the descriptors @hourly, @daily (@midnight), @weekly,
// @monthly, and @yearly (@annually). Fields accept values, ranges
// (1-5), lists (1,3,5), steps (*/15, 1-30/5), and the wildcard.
// Months and weekdays also accept three-letter English names (JAN,
// MON). Day-of-week runs 0-6 with 0 as Sunday; 7 is accepted as
// Sunday too.
//
// When both day fields are restricted a day matches if either field
// matches, as in Vixie cron. All times are UTC.
package cron
