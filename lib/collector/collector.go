// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bureau-foundation/ccengine/lib/payload"
	"github.com/bureau-foundation/ccengine/lib/schema/compliance"
)

// Request identifies what to collect.
type Request struct {
	ControlID string

	// At is the run timestamp. Collectors stamp their snapshot with it
	// so every row a run writes shares one instant.
	At time.Time

	// Options are the extra keys declared on the evidence source in the
	// control definition. May be nil.
	Options payload.Payload
}

// Collector produces one snapshot of a source system.
type Collector interface {
	Collect(ctx context.Context, request Request) (compliance.Snapshot, error)
}

// Func adapts a function to Collector.
type Func func(ctx context.Context, request Request) (compliance.Snapshot, error)

// Collect calls fn.
func (fn Func) Collect(ctx context.Context, request Request) (compliance.Snapshot, error) {
	return fn(ctx, request)
}

// FetchError is a source system that could not be read.
type FetchError struct {
	Source    string
	ControlID string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("collector: %s evidence for %s: %v", e.Source, e.ControlID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrorSnapshot builds an error-flagged snapshot recording why a source
// could not be collected. kind is compliance.ErrorKindUnknownSource or
// compliance.ErrorKindFetch.
func ErrorSnapshot(source string, at time.Time, kind, message string) compliance.Snapshot {
	return compliance.Snapshot{
		CollectedAt:  at,
		SourceSystem: source,
		RawSnapshot: payload.Payload{
			compliance.ErrorKey:     message,
			compliance.ErrorKindKey: kind,
		},
	}
}

// UnknownSourceSnapshot is the snapshot recorded for a source with no
// registered collector.
func UnknownSourceSnapshot(source string, at time.Time) compliance.Snapshot {
	return ErrorSnapshot(source, at, compliance.ErrorKindUnknownSource, "Unknown source system: "+source)
}

// Registry maps source system identifiers to collectors. Populate it
// before use; lookups are safe for concurrent use once registration
// stops.
type Registry struct {
	collectors map[string]Collector
}

// Options configures NewRegistry.
type Options struct {
	// SimulateDrift makes the cloud_iam fixture report CC6.1 as
	// non-compliant.
	SimulateDrift bool

	// GitHub replaces the github fixture, typically with a
	// *GitHubCollector.
	GitHub Collector
}

// NewRegistry returns a registry with the github, cloud_iam, and cicd
// collectors.
func NewRegistry(options Options) *Registry {
	github := options.GitHub
	if github == nil {
		github = GitHubFixture{}
	}
	return &Registry{collectors: map[string]Collector{
		compliance.SourceGitHub:   github,
		compliance.SourceCloudIAM: IAMFixture{SimulateDrift: options.SimulateDrift},
		compliance.SourceCICD:     CICDFixture{},
	}}
}

// NewEmptyRegistry returns a registry with no collectors.
func NewEmptyRegistry() *Registry {
	return &Registry{collectors: make(map[string]Collector)}
}

// Register adds or replaces the collector for source.
func (r *Registry) Register(source string, collector Collector) error {
	if source == "" {
		return fmt.Errorf("collector: empty source system")
	}
	if collector == nil {
		return fmt.Errorf("collector: nil collector for %q", source)
	}
	r.collectors[source] = collector
	return nil
}

// Lookup returns the collector for source.
func (r *Registry) Lookup(source string) (Collector, bool) {
	collector, ok := r.collectors[source]
	return collector, ok
}

// Sources returns the registered source identifiers, sorted.
func (r *Registry) Sources() []string {
	sources := make([]string, 0, len(r.collectors))
	for source := range r.collectors {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}
