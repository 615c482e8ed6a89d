// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package provider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/relay-dev/relay/internal/provider"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey_AuthHeaders(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		path     string
		check    func(t *testing.T, r *http.Request)
	}{
		{
			name:     "anthropic",
			provider: provider.NameAnthropic,
			path:     "/v1/models",
			check: func(t *testing.T, r *http.Request) {
				assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
				assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
			},
		},
		{
			name:     "openai",
			provider: provider.NameOpenAI,
			path:     "/models",
			check: func(t *testing.T, r *http.Request) {
				assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
			},
		},
		{
			name:     "google",
			provider: provider.NameGoogle,
			path:     "/v1beta/models",
			check: func(t *testing.T, r *http.Request) {
				assert.Equal(t, "test-api-key", r.Header.Get("x-goog-api-key"))
				assert.Empty(t, r.URL.Query().Get("key"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.path, r.URL.Path)
				tt.check(t, r)
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
			}))
			defer srv.Close()

			err := provider.ValidateKey(context.Background(), srv.Client(), tt.provider, "test-api-key", srv.URL)
			require.NoError(t, err)
		})
	}
}

func TestValidateKey_RejectedKey(t *testing.T) {
	tests := []struct {
		name       string
		provider   string
		statusCode int
		wantCode   relayerr.Code
	}{
		{"anthropic 401", provider.NameAnthropic, http.StatusUnauthorized, relayerr.CodeProviderKeyInvalid},
		{"openai 403", provider.NameOpenAI, http.StatusForbidden, relayerr.CodeProviderKeyInvalid},
		{"google 500", provider.NameGoogle, http.StatusInternalServerError, relayerr.CodeProviderKeyCheckFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer srv.Close()

			err := provider.ValidateKey(context.Background(), srv.Client(), tt.provider, "bad-key", srv.URL)
			require.Error(t, err)
			assert.True(t, relayerr.HasCode(err, tt.wantCode),
				"expected %s, got %s", tt.wantCode, relayerr.CodeOf(err))
		})
	}
}

func TestValidateKey_MissingKey(t *testing.T) {
	err := provider.ValidateKey(context.Background(), http.DefaultClient, provider.NameOpenAI, "", "")
	require.Error(t, err)
	assert.True(t, relayerr.IsConfigurationMissing(err))
}

func TestValidateKey_UnknownProvider(t *testing.T) {
	err := provider.ValidateKey(context.Background(), http.DefaultClient, "mystery", "key", "")
	require.Error(t, err)
	assert.True(t, relayerr.HasCode(err, relayerr.CodeProviderKeyInvalid))
}
