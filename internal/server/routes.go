// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package server

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/relay-dev/relay/internal/provider"
	"github.com/relay-dev/relay/internal/router"
	"github.com/relay-dev/relay/internal/store"
	relayerr "github.com/relay-dev/relay/pkg/errors"
)

const jobsPath = "/api/v1/jobs"

func (s *Server) registerRoutes() {
	// Job endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "submit-job",
		Method:      http.MethodPost,
		Path:        jobsPath,
		Summary:     "Route a job to the first healthy provider",
		Tags:        []string{"jobs"},
	}, s.handleSubmitJob)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        jobsPath,
		Summary:     "List recent jobs",
		Tags:        []string{"jobs"},
	}, s.handleListJobs)

	// Provider endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-provider-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers/health",
		Summary:     "Health of every configured provider",
		Tags:        []string{"providers"},
	}, s.handleListProviderHealth)

	huma.Register(s.api, huma.Operation{
		OperationID: "get-provider-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers/{name}/health",
		Summary:     "Health of one provider",
		Tags:        []string{"providers"},
	}, s.handleGetProviderHealth)
}

// --- Request/Response types for huma ---

// JobData carries the payload of either job type. Fields not used by the
// job type are ignored.
type JobData struct {
	Base64File    string `json:"base64_file,omitempty" doc:"Document bytes, standard base64"`
	MediaType     string `json:"media_type,omitempty" doc:"MIME type of the document"`
	ChunkIndex    *int   `json:"chunk_index,omitempty" doc:"Zero-based chunk position"`
	TotalChunks   *int   `json:"total_chunks,omitempty" doc:"Number of chunks in the document"`
	ExtractedText string `json:"extracted_text,omitempty" doc:"Text to analyze"`
	DocumentType  string `json:"document_type,omitempty" doc:"Document type hint, e.g. invoice"`
}

type submitJobInput struct {
	Body struct {
		JobType string  `json:"job_type,omitempty" doc:"extract_text or analyze_content"`
		Data    JobData `json:"data,omitempty"`
	}
}

// JobResponse is the body of a successful job. Text is set for extraction,
// Analysis for analysis.
type JobResponse struct {
	Text     string  `json:"text,omitempty"`
	Analysis string  `json:"analysis,omitempty"`
	Cost     float64 `json:"cost" doc:"Estimated cost in USD"`
	Provider string  `json:"provider" doc:"Provider that produced the output"`
	Latency  int64   `json:"latency" doc:"Latency of the successful call in milliseconds"`
	Attempts int     `json:"attempts" doc:"Providers tried, including the successful one"`
}

type submitJobOutput struct {
	Body JobResponse
}

type listJobsInput struct {
	Limit    int    `query:"limit" minimum:"0" maximum:"1000" doc:"Maximum entries (default 100)"`
	JobType  string `query:"job_type" doc:"Filter by job type"`
	Provider string `query:"provider" doc:"Filter by provider"`
}

type listJobsOutput struct {
	Body struct {
		Jobs []*store.JobEntry `json:"jobs"`
	}
}

type listProviderHealthOutput struct {
	Body struct {
		Providers []ProviderHealthDetail `json:"providers"`
	}
}

type providerNameInput struct {
	Name string `path:"name"`
}

type getProviderHealthOutput struct {
	Body ProviderHealthDetail
}

// --- Handlers ---

func (s *Server) handleSubmitJob(ctx context.Context, input *submitJobInput) (*submitJobOutput, error) {
	job, err := jobFromInput(input.Body.JobType, input.Body.Data)
	if err != nil {
		return nil, newJobError(http.StatusBadRequest, err.Error(), "")
	}

	res, err := s.services.router.Submit(ctx, job)
	if err != nil {
		return nil, jobFailure(err)
	}

	out := &submitJobOutput{Body: JobResponse{
		Cost:     res.Cost,
		Provider: res.Provider,
		Latency:  res.LatencyMs,
		Attempts: res.Attempts,
	}}
	if job.Type == router.JobExtractText {
		out.Body.Text = res.Output
	} else {
		out.Body.Analysis = res.Output
	}
	return out, nil
}

func jobFromInput(rawType string, data JobData) (router.Job, error) {
	jobType, err := router.ParseJobType(rawType)
	if err != nil {
		return router.Job{}, err
	}

	if jobType == router.JobAnalyzeContent {
		return router.AnalyzeJob(provider.AnalyzeRequest{
			Text:         data.ExtractedText,
			DocumentType: data.DocumentType,
		}), nil
	}

	if strings.TrimSpace(data.Base64File) == "" {
		return router.Job{}, relayerr.New(relayerr.CodeServerRequestInvalid, "data.base64_file is required")
	}
	content, err := base64.StdEncoding.DecodeString(data.Base64File)
	if err != nil {
		return router.Job{}, relayerr.Wrap(err, relayerr.CodeServerRequestInvalid, "data.base64_file is not valid base64")
	}

	req := provider.ExtractRequest{Content: content, MediaType: data.MediaType}
	switch {
	case data.ChunkIndex != nil && data.TotalChunks != nil:
		req.Chunk = &provider.ChunkInfo{Index: *data.ChunkIndex, Total: *data.TotalChunks}
	case data.ChunkIndex != nil || data.TotalChunks != nil:
		return router.Job{}, relayerr.New(relayerr.CodeServerRequestInvalid,
			"data.chunk_index and data.total_chunks must be given together")
	}
	return router.ExtractJob(req), nil
}

// jobFailure maps a routing error to the response the API promises.
func jobFailure(err error) error {
	status := relayerr.HTTPStatus(err)
	switch code := relayerr.CodeOf(err); {
	case code == relayerr.CodeRouterNoProviders:
		return newJobError(status, "no healthy providers", "")
	case code == relayerr.CodeRouterExhausted:
		return newJobError(status, "all providers failed",
			relayerr.StringField(err, "last_error"))
	case relayerr.IsInvalidInput(err):
		return newJobError(status, err.Error(), "")
	default:
		slog.Error("job submission failed", "error", err)
		return huma.Error500InternalServerError("job submission failed", err)
	}
}

func (s *Server) handleListJobs(ctx context.Context, input *listJobsInput) (*listJobsOutput, error) {
	out := &listJobsOutput{}
	out.Body.Jobs = []*store.JobEntry{}
	if s.services.jobs == nil {
		return out, nil
	}

	entries, err := s.services.jobs.Query(ctx, store.JobFilter{
		JobType:  input.JobType,
		Provider: input.Provider,
		Limit:    input.Limit,
	})
	if err != nil {
		return nil, huma.Error500InternalServerError("listing jobs", err)
	}
	if entries != nil {
		out.Body.Jobs = entries
	}
	return out, nil
}

func (s *Server) handleListProviderHealth(ctx context.Context, _ *struct{}) (*listProviderHealthOutput, error) {
	details, err := s.services.providerHealth(ctx, s.services.providers)
	if err != nil {
		return nil, huma.Error500InternalServerError("loading provider health", err)
	}
	out := &listProviderHealthOutput{}
	out.Body.Providers = details
	return out, nil
}

func (s *Server) handleGetProviderHealth(ctx context.Context, input *providerNameInput) (*getProviderHealthOutput, error) {
	if !s.services.knows(input.Name) {
		return nil, huma.Error404NotFound(fmt.Sprintf("provider %q not found", input.Name))
	}
	details, err := s.services.providerHealth(ctx, []string{input.Name})
	if err != nil {
		return nil, huma.Error500InternalServerError("loading provider health", err)
	}
	return &getProviderHealthOutput{Body: details[0]}, nil
}
