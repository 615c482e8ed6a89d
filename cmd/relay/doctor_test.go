// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

// fakeModelsAPI accepts only the keys listed per auth header value.
func fakeModelsAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok := false
		switch r.URL.Path {
		case "/models":
			ok = r.Header.Get("Authorization") == "Bearer sk-good"
		case "/v1beta/models":
			ok = r.Header.Get("x-goog-api-key") == "g-good"
		case "/v1/models":
			ok = r.Header.Get("x-api-key") == "sk-ant-good"
		default:
			http.NotFound(w, r)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doctorLines(out string) map[string]string {
	lines := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		name, value, ok := strings.Cut(line, ":")
		if ok {
			lines[name] = strings.TrimSpace(value)
		}
	}
	return lines
}

func TestDoctor_ChecksEachProvider(t *testing.T) {
	keyring.MockInit()
	require.NoError(t, keyring.Set("relay", "openai", "sk-good"))

	api := fakeModelsAPI(t)
	cfg := writeConfig(t, `
providers:
  openai:
    api_key: "keyring://relay/openai"
    base_url: "`+api.URL+`"
  google:
    api_key: "g-bad"
    base_url: "`+api.URL+`"
  anthropic:
    api_key: ""
    base_url: "`+api.URL+`"
storage:
  backend: memory
`)

	out, err := runCLI(t, "", "doctor", "--config", cfg, "--address", "127.0.0.1:1")
	require.NoError(t, err)

	lines := doctorLines(out)
	assert.Equal(t, "ok", lines["Provider openai"])
	assert.Equal(t, "invalid API key", lines["Provider google"])
	assert.Contains(t, lines["Provider anthropic"], "relay secret set anthropic")
	assert.Contains(t, lines["Gateway"], "not running")
	assert.Equal(t, "memory", lines["Storage"])
	assert.Contains(t, lines["Binary"], "relay dev")
}

func TestDoctor_UnresolvedKeyringReference(t *testing.T) {
	keyring.MockInit()

	api := fakeModelsAPI(t)
	cfg := writeConfig(t, `
providers:
  openai:
    api_key: "keyring://relay/openai"
    base_url: "`+api.URL+`"
routing:
  extract_text: [openai]
  analyze_content: [openai]
storage:
  backend: memory
`)

	out, err := runCLI(t, "", "doctor", "--config", cfg, "--address", "127.0.0.1:1")
	require.NoError(t, err)
	assert.Contains(t, doctorLines(out)["Provider openai"], "no API key")
}

func TestDoctor_SkipProviders(t *testing.T) {
	cfg := writeConfig(t, memoryConfig)

	out, err := runCLI(t, "", "doctor", "--config", cfg, "--address", "127.0.0.1:1", "--skip-providers")
	require.NoError(t, err)
	assert.NotContains(t, out, "Provider")
	assert.Contains(t, out, "Config:")
}

func TestDoctor_ReportsRunningGateway(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(gateway.Close)

	cfg := writeConfig(t, memoryConfig)
	addr := strings.TrimPrefix(gateway.URL, "http://")
	out, err := runCLI(t, "", "doctor", "--config", cfg, "--address", addr, "--skip-providers")
	require.NoError(t, err)
	assert.Equal(t, "ok at "+addr, doctorLines(out)["Gateway"])
}
