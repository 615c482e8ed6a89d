// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package store

import "time"

// DefaultQueryLimit caps JobLog.Query when the filter sets no limit.
const DefaultQueryLimit = 100

// JobEntry is one routed job.
type JobEntry struct {
	ID        string    `json:"id" yaml:"id"`
	JobType   string    `json:"job_type" yaml:"job_type"`
	Provider  string    `json:"provider,omitempty" yaml:"provider,omitempty"`
	Success   bool      `json:"success" yaml:"success"`
	LatencyMs int64     `json:"latency_ms" yaml:"latency_ms"`
	Cost      float64   `json:"cost" yaml:"cost"`
	Attempts  int       `json:"attempts" yaml:"attempts"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// JobFilter narrows a job log query. Results are newest first.
type JobFilter struct {
	JobType  string
	Provider string
	Limit    int
}

// EffectiveLimit returns the limit to apply to a query.
func (f JobFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultQueryLimit
	}
	return f.Limit
}

// Matches reports whether e passes the filter's equality conditions.
func (f JobFilter) Matches(e *JobEntry) bool {
	if f.JobType != "" && e.JobType != f.JobType {
		return false
	}
	if f.Provider != "" && e.Provider != f.Provider {
		return false
	}
	return true
}
