// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/relay-dev/relay/internal/provider"
	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = string(anthropicsdk.ModelClaudeSonnet4_5)

// DefaultTimeout bounds a single Messages API call.
const DefaultTimeout = 60 * time.Second

// Config holds Anthropic adapter configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
	Timeout time.Duration
}

// Adapter implements provider.Adapter using the Anthropic Messages API.
type Adapter struct {
	client anthropicsdk.Client
	config Config
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates an Anthropic adapter. A missing API key is not an error here;
// every call then fails with a configuration error instead.
func New(cfg Config) (*Adapter, error) {
	if cfg.Timeout < 0 {
		return nil, relayerr.Errorf(relayerr.CodeConfigValidateInvalidValue,
			"anthropic: timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Adapter{
		client: anthropicsdk.NewClient(opts...),
		config: cfg,
	}, nil
}

func (a *Adapter) Name() string { return provider.NameAnthropic }

// Model returns the model requests are sent to.
func (a *Adapter) Model() string { return a.config.Model }

func (a *Adapter) Extract(ctx context.Context, req provider.ExtractRequest) (string, error) {
	doc, err := documentBlock(req)
	if err != nil {
		return "", err
	}
	msg := anthropicsdk.NewUserMessage(doc, anthropicsdk.NewTextBlock(provider.ExtractPrompt(req.Chunk)))
	return a.send(ctx, msg, provider.ExtractMaxTokens)
}

func (a *Adapter) Analyze(ctx context.Context, req provider.AnalyzeRequest) (string, error) {
	msg := anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(provider.AnalyzePrompt(req)))
	return a.send(ctx, msg, provider.AnalyzeMaxTokens)
}

func (a *Adapter) send(ctx context.Context, msg anthropicsdk.MessageParam, maxTokens int64) (string, error) {
	if a.config.APIKey == "" {
		return "", provider.ConfigurationError(provider.NameAnthropic, "API key is not configured")
	}

	resp, err := a.client.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(a.config.Model),
		MaxTokens: maxTokens,
		Messages:  []anthropicsdk.MessageParam{msg},
	})
	if err != nil {
		return "", a.classify(err)
	}

	// A blank page yields no text blocks.
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

func (a *Adapter) classify(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return provider.UpstreamError(provider.NameAnthropic, apiErr.StatusCode, apiErr.RawJSON(), a.config.APIKey)
	}
	return provider.TransportError(provider.NameAnthropic, err, a.config.APIKey)
}

// documentBlock picks the content block type for the payload's media type.
func documentBlock(req provider.ExtractRequest) (anthropicsdk.ContentBlockParamUnion, error) {
	switch {
	case provider.IsPDF(req.MediaType):
		return anthropicsdk.NewDocumentBlock(anthropicsdk.Base64PDFSourceParam{
			Data: base64.StdEncoding.EncodeToString(req.Content),
		}), nil
	case provider.IsImage(req.MediaType):
		return anthropicsdk.NewImageBlockBase64(req.MediaType, base64.StdEncoding.EncodeToString(req.Content)), nil
	case provider.IsText(req.MediaType) || utf8.Valid(req.Content):
		return anthropicsdk.NewDocumentBlock(anthropicsdk.PlainTextSourceParam{Data: string(req.Content)}), nil
	default:
		return anthropicsdk.ContentBlockParamUnion{}, provider.UnsupportedMediaError(provider.NameAnthropic, req.MediaType)
	}
}
