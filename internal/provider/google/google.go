// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/relay-dev/relay/internal/provider"
	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// DefaultTimeout bounds a single GenerateContent call.
const DefaultTimeout = 60 * time.Second

// Config holds Google adapter configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
	Timeout time.Duration
}

// Adapter implements provider.Adapter using the Gemini GenerateContent API.
type Adapter struct {
	client *genai.Client // nil when no API key is configured
	config Config
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates a Google adapter. Without an API key no client is built and
// every call fails with a configuration error; the SDK is never allowed to
// fall back to credentials from the environment.
func New(cfg Config) (*Adapter, error) {
	if cfg.Timeout < 0 {
		return nil, relayerr.Errorf(relayerr.CodeConfigValidateInvalidValue,
			"google: timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	a := &Adapter{config: cfg}
	if cfg.APIKey == "" {
		return a, nil
	}

	timeout := cfg.Timeout
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
			Timeout: &timeout,
		},
	})
	if err != nil {
		return nil, relayerr.Wrapf(err, relayerr.CodeConfigValidateInvalidValue, "google: creating client")
	}
	a.client = client
	return a, nil
}

func (a *Adapter) Name() string { return provider.NameGoogle }

// Model returns the model requests are sent to.
func (a *Adapter) Model() string { return a.config.Model }

func (a *Adapter) Extract(ctx context.Context, req provider.ExtractRequest) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromBytes(req.Content, req.MediaType),
		genai.NewPartFromText(provider.ExtractPrompt(req.Chunk)),
	}
	return a.generate(ctx, parts, provider.ExtractMaxTokens)
}

func (a *Adapter) Analyze(ctx context.Context, req provider.AnalyzeRequest) (string, error) {
	parts := []*genai.Part{genai.NewPartFromText(provider.AnalyzePrompt(req))}
	return a.generate(ctx, parts, provider.AnalyzeMaxTokens)
}

func (a *Adapter) generate(ctx context.Context, parts []*genai.Part, maxTokens int32) (string, error) {
	if a.client == nil {
		return "", provider.ConfigurationError(provider.NameGoogle, "API key is not configured")
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := a.client.Models.GenerateContent(ctx, a.config.Model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: maxTokens,
	})
	if err != nil {
		return "", a.classify(err)
	}

	if len(resp.Candidates) == 0 {
		return "", provider.MalformedResponseError(provider.NameGoogle, "candidates")
	}
	return resp.Text(), nil
}

func (a *Adapter) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		detail := apiErr.Message
		if apiErr.Status != "" {
			detail = fmt.Sprintf("%s (%s)", detail, apiErr.Status)
		}
		return provider.UpstreamError(provider.NameGoogle, apiErr.Code, detail, a.config.APIKey)
	}
	return provider.TransportError(provider.NameGoogle, err, a.config.APIKey)
}
