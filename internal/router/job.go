// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package router

import (
	"fmt"
	"slices"
	"strings"

	"github.com/relay-dev/relay/internal/provider"
	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// JobType selects the work a provider performs and the order in which
// providers are tried.
type JobType string

const (
	JobExtractText    JobType = "extract_text"
	JobAnalyzeContent JobType = "analyze_content"
)

// JobTypes lists every supported job type.
var JobTypes = []JobType{JobExtractText, JobAnalyzeContent}

func (t JobType) Valid() bool {
	return slices.Contains(JobTypes, t)
}

// ParseJobType converts user input into a JobType.
func ParseJobType(raw string) (JobType, error) {
	t := JobType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", relayerr.New(relayerr.CodeRouterRequestInvalid,
			fmt.Sprintf("unknown job type %q", raw),
			relayerr.FieldJobType(raw))
	}
	return t, nil
}

// Orders maps each job type to its provider priority list.
type Orders map[JobType][]string

// DefaultOrders returns the built-in priorities.
func DefaultOrders() Orders {
	return Orders{
		JobExtractText:    {provider.NameGoogle, provider.NameOpenAI, provider.NameAnthropic},
		JobAnalyzeContent: {provider.NameAnthropic, provider.NameGoogle, provider.NameOpenAI},
	}
}

// Clone returns a deep copy of o.
func (o Orders) Clone() Orders {
	out := make(Orders, len(o))
	for t, names := range o {
		out[t] = slices.Clone(names)
	}
	return out
}

// Job is one unit of routed work. Exactly one payload matching Type is set.
type Job struct {
	Type    JobType
	Extract *provider.ExtractRequest
	Analyze *provider.AnalyzeRequest
}

// ExtractJob builds an extract_text job.
func ExtractJob(req provider.ExtractRequest) Job {
	return Job{Type: JobExtractText, Extract: &req}
}

// AnalyzeJob builds an analyze_content job.
func AnalyzeJob(req provider.AnalyzeRequest) Job {
	return Job{Type: JobAnalyzeContent, Analyze: &req}
}

// Validate checks that the job carries the payload its type needs.
func (j Job) Validate() error {
	invalid := func(msg string) error {
		return relayerr.New(relayerr.CodeRouterRequestInvalid, msg, relayerr.FieldJobType(string(j.Type)))
	}

	switch j.Type {
	case JobExtractText:
		if j.Extract == nil {
			return invalid("extract_text job requires an extract payload")
		}
		if len(j.Extract.Content) == 0 {
			return invalid("extract_text job has empty content")
		}
		if j.Extract.MediaType == "" {
			return invalid("extract_text job requires a media type")
		}
		if c := j.Extract.Chunk; c != nil {
			if c.Total <= 0 || c.Index < 0 || c.Index >= c.Total {
				return invalid(fmt.Sprintf("chunk %d of %d is out of range", c.Index, c.Total))
			}
		}
	case JobAnalyzeContent:
		if j.Analyze == nil {
			return invalid("analyze_content job requires an analyze payload")
		}
		if strings.TrimSpace(j.Analyze.Text) == "" {
			return invalid("analyze_content job has empty text")
		}
	default:
		return invalid(fmt.Sprintf("unknown job type %q", j.Type))
	}
	return nil
}

// Result is the outcome of a successful job.
type Result struct {
	Output    string  `json:"output"`
	Provider  string  `json:"provider"`
	LatencyMs int64   `json:"latency_ms"`
	Cost      float64 `json:"cost"`
	Attempts  int     `json:"attempts"`
}
