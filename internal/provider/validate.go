// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"strings"

	relayerr "github.com/relay-dev/relay/pkg/errors"
)

const anthropicVersion = "2023-06-01"

var defaultModelsURLs = map[string]string{
	NameAnthropic: "https://api.anthropic.com/v1/models",
	NameOpenAI:    "https://api.openai.com/v1/models",
	NameGoogle:    "https://generativelanguage.googleapis.com/v1beta/models",
}

// ModelsURL returns the models listing endpoint for name. A non-empty
// baseURL (as configured for the adapter) replaces the public host.
func ModelsURL(name, baseURL string) string {
	if baseURL == "" {
		return defaultModelsURLs[name]
	}
	base := strings.TrimRight(baseURL, "/")
	switch name {
	case NameAnthropic:
		return base + "/v1/models"
	case NameGoogle:
		return base + "/v1beta/models"
	default:
		return base + "/models"
	}
}

// ValidateKey makes a lightweight authenticated call to the provider's models
// endpoint to confirm the API key is accepted. It never sends a job payload.
func ValidateKey(ctx context.Context, client *http.Client, name, key, baseURL string) error {
	if key == "" {
		return ConfigurationError(name, "API key is not configured")
	}

	url := ModelsURL(name, baseURL)
	if url == "" {
		return relayerr.Errorf(relayerr.CodeProviderKeyInvalid, "unknown provider: %s", name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return relayerr.Errorf(relayerr.CodeProviderKeyCheckFailed, "building validation request: %s", Redact(err.Error(), key))
	}
	switch name {
	case NameAnthropic:
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", anthropicVersion)
	case NameGoogle:
		req.Header.Set("x-goog-api-key", key)
	default:
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := client.Do(req)
	if err != nil {
		return relayerr.Errorf(relayerr.CodeProviderKeyCheckFailed, "validating %s key: %s", name, Redact(err.Error(), key))
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return relayerr.Errorf(relayerr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return relayerr.Errorf(relayerr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", name, resp.StatusCode)
	}
	return nil
}
