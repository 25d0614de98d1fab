// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bureau-foundation/ccengine/lib/clock"
)

// quotaWindow holds the instant until which the primary rate limit is
// exhausted. A collection pass makes a few dozen requests, so the only
// state worth keeping is whether the next one would be refused.
type quotaWindow struct {
	clock clock.Clock

	mu             sync.Mutex
	exhaustedUntil time.Time
}

// observe records the X-RateLimit headers of a response. Responses
// without them leave the window unchanged.
func (window *quotaWindow) observe(header http.Header) {
	remaining, err := strconv.Atoi(header.Get("X-RateLimit-Remaining"))
	if err != nil {
		return
	}
	reset, ok := resetTime(header)
	if !ok {
		return
	}

	window.mu.Lock()
	defer window.mu.Unlock()
	if remaining > 0 {
		window.exhaustedUntil = time.Time{}
		return
	}
	window.exhaustedUntil = reset
}

// wait blocks until the window reopens.
func (window *quotaWindow) wait(ctx context.Context) error {
	window.mu.Lock()
	until := window.exhaustedUntil
	window.mu.Unlock()

	if until.IsZero() {
		return nil
	}
	delay := until.Sub(window.clock.Now())
	if delay <= 0 {
		return nil
	}
	select {
	case <-window.clock.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoff is the delay a rate-limited response asks for: Retry-After
// seconds for secondary limits, otherwise the primary reset time. Zero
// means the response gave no usable hint.
func (window *quotaWindow) backoff(header http.Header) time.Duration {
	if seconds, err := strconv.Atoi(header.Get("Retry-After")); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if reset, ok := resetTime(header); ok {
		return max(reset.Sub(window.clock.Now()), 0)
	}
	return 0
}

func resetTime(header http.Header) (time.Time, bool) {
	unix, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0), true
}
