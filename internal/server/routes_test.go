// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package server_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relay-dev/relay/internal/provider"
	"github.com/relay-dev/relay/internal/router"
	"github.com/relay-dev/relay/internal/server"
	"github.com/relay-dev/relay/internal/store"
	"github.com/relay-dev/relay/internal/telemetry"
	"github.com/relay-dev/relay/pkg/health"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return epoch }

// stubAdapter answers every call with output or err.
type stubAdapter struct {
	name   string
	output string
	err    error

	mu      sync.Mutex
	extract []provider.ExtractRequest
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Extract(_ context.Context, req provider.ExtractRequest) (string, error) {
	a.mu.Lock()
	a.extract = append(a.extract, req)
	a.mu.Unlock()
	return a.output, a.err
}

func (a *stubAdapter) Analyze(context.Context, provider.AnalyzeRequest) (string, error) {
	return a.output, a.err
}

type fixture struct {
	srv      *server.Server
	store    *store.MemoryStore
	adapters map[string]*stubAdapter
}

func newFixture(t *testing.T, mutate func(*server.Config), adapters ...*stubAdapter) *fixture {
	t.Helper()
	if len(adapters) == 0 {
		adapters = []*stubAdapter{
			{name: "anthropic", output: "anthropic analysis"},
			{name: "google", output: "google text"},
			{name: "openai", output: "openai text"},
		}
	}

	reg := provider.NewRegistry()
	byName := map[string]*stubAdapter{}
	for _, a := range adapters {
		reg.Register(a.name, a)
		byName[a.name] = a
	}

	ms := store.NewMemoryStore(&store.StorageConfig{Now: fixedClock})
	rec, err := telemetry.NewRecorder(ms.Health(), ms.Jobs(), telemetry.WithClock(fixedClock))
	require.NoError(t, err)

	r, err := router.New(router.Config{Adapters: reg, Health: ms.Health(), Recorder: rec, Now: fixedClock})
	require.NoError(t, err)

	svc, err := server.NewServices(r, ms.Health(), ms.Jobs(), provider.BuiltinNames)
	require.NoError(t, err)
	svc.WithClock(fixedClock)

	cfg := server.Config{ListenAddr: "127.0.0.1:0", Services: svc}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := server.New(cfg)
	require.NoError(t, err)

	return &fixture{srv: srv, store: ms, adapters: byName}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func cooling(name string) health.Record {
	rec := health.Healthy(name)
	rec.Status = health.StatusUnhealthy
	until := epoch.Add(10 * time.Minute)
	rec.CooldownUntil = &until
	rec.ConsecutiveFailures = 4
	return rec
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNewServicesValidation(t *testing.T) {
	ms := store.NewMemoryStore(nil)
	_, err := server.NewServices(nil, ms.Health(), nil, nil)
	assert.Error(t, err)

	r := &router.Router{}
	_, err = server.NewServices(r, nil, nil, nil)
	assert.Error(t, err)
}

func TestSubmitExtractJob(t *testing.T) {
	f := newFixture(t, nil)
	content := base64.StdEncoding.EncodeToString([]byte("%PDF-1.7 fake"))

	w := f.do(t, http.MethodPost, "/api/v1/jobs",
		`{"job_type":"extract_text","data":{"base64_file":"`+content+`","media_type":"application/pdf","chunk_index":1,"total_chunks":4}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[server.JobResponse](t, w)
	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, "google text", resp.Text)
	assert.Empty(t, resp.Analysis)
	assert.Equal(t, 1, resp.Attempts)
	assert.InDelta(t, provider.EstimateCost("google", len("google text")), resp.Cost, 1e-12)

	g := f.adapters["google"]
	require.Len(t, g.extract, 1)
	assert.Equal(t, []byte("%PDF-1.7 fake"), g.extract[0].Content)
	assert.Equal(t, "application/pdf", g.extract[0].MediaType)
	require.NotNil(t, g.extract[0].Chunk)
	assert.Equal(t, provider.ChunkInfo{Index: 1, Total: 4}, *g.extract[0].Chunk)
}

func TestSubmitAnalyzeJob(t *testing.T) {
	f := newFixture(t, nil)
	f.store.SetRecord(cooling("anthropic"))

	w := f.do(t, http.MethodPost, "/api/v1/jobs",
		`{"job_type":"analyze_content","data":{"extracted_text":"Total due: 42 EUR","document_type":"invoice"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[server.JobResponse](t, w)
	assert.Equal(t, "google", resp.Provider)
	assert.Equal(t, "google text", resp.Analysis)
	assert.Empty(t, resp.Text)
}

func TestSubmitJobNoHealthyProviders(t *testing.T) {
	f := newFixture(t, nil)
	for _, name := range provider.BuiltinNames {
		f.store.SetRecord(cooling(name))
	}

	w := f.do(t, http.MethodPost, "/api/v1/jobs",
		`{"job_type":"analyze_content","data":{"extracted_text":"hello"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, map[string]any{"error": "no healthy providers"}, body)
}

func TestSubmitJobAllProvidersFailed(t *testing.T) {
	f := newFixture(t, nil,
		&stubAdapter{name: "anthropic", err: provider.UpstreamError("anthropic", 529, `{"type":"overloaded_error"}`)},
		&stubAdapter{name: "google", err: provider.UpstreamError("google", 500, "internal")},
		&stubAdapter{name: "openai", err: provider.UpstreamError("openai", 429, "rate limited")},
	)

	w := f.do(t, http.MethodPost, "/api/v1/jobs",
		`{"job_type":"analyze_content","data":{"extracted_text":"hello"}}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, "all providers failed", body["error"])
	last, _ := body["last_error"].(string)
	assert.Contains(t, last, "openai")
	assert.Contains(t, last, "rate limited")
	assert.Len(t, body, 2)
}

func TestSubmitJobInvalidRequests(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name string
		body string
	}{
		{"missing job type", `{"data":{"extracted_text":"x"}}`},
		{"unknown job type", `{"job_type":"translate","data":{}}`},
		{"bad base64", `{"job_type":"extract_text","data":{"base64_file":"***","media_type":"text/plain"}}`},
		{"missing file", `{"job_type":"extract_text","data":{"media_type":"text/plain"}}`},
		{"missing media type", `{"job_type":"extract_text","data":{"base64_file":"aGVsbG8="}}`},
		{"half chunk info", `{"job_type":"extract_text","data":{"base64_file":"aGVsbG8=","media_type":"text/plain","chunk_index":0}}`},
		{"chunk out of range", `{"job_type":"extract_text","data":{"base64_file":"aGVsbG8=","media_type":"text/plain","chunk_index":2,"total_chunks":2}}`},
		{"empty analysis text", `{"job_type":"analyze_content","data":{"extracted_text":""}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/jobs", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			body := decode[map[string]any](t, w)
			assert.NotEmpty(t, body["error"])
		})
	}

	for _, a := range f.adapters {
		assert.Empty(t, a.extract)
	}
}

func TestListProviderHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.store.SetRecord(cooling("openai"))

	w := f.do(t, http.MethodGet, "/api/v1/providers/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[struct {
		Providers []server.ProviderHealthDetail `json:"providers"`
	}](t, w)
	require.Len(t, resp.Providers, 3)

	byName := map[string]server.ProviderHealthDetail{}
	for _, p := range resp.Providers {
		byName[p.Provider] = p
	}
	assert.Equal(t, "healthy", byName["google"].Status)
	assert.False(t, byName["google"].InCooldown)
	assert.Equal(t, "unhealthy", byName["openai"].Status)
	assert.True(t, byName["openai"].InCooldown)
	require.NotNil(t, byName["openai"].CooldownUntil)
	assert.True(t, byName["openai"].CooldownUntil.Equal(epoch.Add(10*time.Minute)))
}

func TestGetProviderHealth(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/v1/providers/anthropic/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[server.ProviderHealthDetail](t, w)
	assert.Equal(t, "anthropic", detail.Provider)
	assert.Equal(t, "healthy", detail.Status)
	assert.Nil(t, detail.CooldownUntil)

	w = f.do(t, http.MethodGet, "/api/v1/providers/mistral/health", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProviderHealthReflectsJobs(t *testing.T) {
	f := newFixture(t, nil,
		&stubAdapter{name: "google", err: errors.New("dial tcp: connection refused")},
		&stubAdapter{name: "openai", output: "ok"},
		&stubAdapter{name: "anthropic", output: "ok"},
	)

	w := f.do(t, http.MethodPost, "/api/v1/jobs",
		`{"job_type":"extract_text","data":{"base64_file":"aGVsbG8=","media_type":"text/plain"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[server.JobResponse](t, w).Attempts)

	w = f.do(t, http.MethodGet, "/api/v1/providers/google/health", "")
	detail := decode[server.ProviderHealthDetail](t, w)
	assert.Equal(t, "degraded", detail.Status)
	assert.Equal(t, int64(1), detail.ConsecutiveFailures)
	assert.Contains(t, detail.LastError, "connection refused")
}

func TestListJobs(t *testing.T) {
	f := newFixture(t, nil)
	for range 3 {
		w := f.do(t, http.MethodPost, "/api/v1/jobs",
			`{"job_type":"analyze_content","data":{"extracted_text":"hello"}}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/v1/jobs?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Jobs []store.JobEntry `json:"jobs"`
	}](t, w)
	require.Len(t, resp.Jobs, 2)
	assert.Equal(t, "analyze_content", resp.Jobs[0].JobType)
	assert.Equal(t, "anthropic", resp.Jobs[0].Provider)
	assert.True(t, resp.Jobs[0].Success)

	w = f.do(t, http.MethodGet, "/api/v1/jobs?job_type=extract_text", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, mustJobs(t, w))
}

func mustJobs(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	return string(raw["jobs"])
}
