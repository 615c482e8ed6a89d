// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/relay-dev/relay/internal/provider"
	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = string(shared.ChatModelGPT4_1)

// DefaultTimeout bounds a single Chat Completions call.
const DefaultTimeout = 60 * time.Second

// Config holds OpenAI adapter configuration.
type Config struct {
	APIKey  string
	BaseURL string // optional, useful for testing against a mock server
	Model   string
	Timeout time.Duration
}

// Adapter implements provider.Adapter using the OpenAI Chat Completions API.
type Adapter struct {
	client openaisdk.Client
	config Config
}

var _ provider.Adapter = (*Adapter)(nil)

// New creates an OpenAI adapter. A missing API key is not an error here;
// every call then fails with a configuration error instead.
func New(cfg Config) (*Adapter, error) {
	if cfg.Timeout < 0 {
		return nil, relayerr.Errorf(relayerr.CodeConfigValidateInvalidValue,
			"openai: timeout must not be negative, got %s", cfg.Timeout)
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

	return &Adapter{client: openaisdk.NewClient(opts...), config: cfg}, nil
}

func (a *Adapter) Name() string { return provider.NameOpenAI }

// Model returns the model requests are sent to.
func (a *Adapter) Model() string { return a.config.Model }

func (a *Adapter) Extract(ctx context.Context, req provider.ExtractRequest) (string, error) {
	parts := []openaisdk.ChatCompletionContentPartUnionParam{
		contentPart(req),
		openaisdk.TextContentPart(provider.ExtractPrompt(req.Chunk)),
	}
	return a.complete(ctx, openaisdk.UserMessage(parts), provider.ExtractMaxTokens)
}

func (a *Adapter) Analyze(ctx context.Context, req provider.AnalyzeRequest) (string, error) {
	return a.complete(ctx, openaisdk.UserMessage(provider.AnalyzePrompt(req)), provider.AnalyzeMaxTokens)
}

func (a *Adapter) complete(ctx context.Context, msg openaisdk.ChatCompletionMessageParamUnion, maxTokens int64) (string, error) {
	if a.config.APIKey == "" {
		return "", provider.ConfigurationError(provider.NameOpenAI, "API key is not configured")
	}

	resp, err := a.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model:               shared.ChatModel(a.config.Model),
		Messages:            []openaisdk.ChatCompletionMessageParamUnion{msg},
		MaxCompletionTokens: openaisdk.Int(maxTokens),
	})
	if err != nil {
		return "", a.classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", provider.MalformedResponseError(provider.NameOpenAI, "choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (a *Adapter) classify(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		detail := apiErr.Message
		if detail == "" {
			detail = apiErr.RawJSON()
		}
		return provider.UpstreamError(provider.NameOpenAI, apiErr.StatusCode, detail, a.config.APIKey)
	}
	return provider.TransportError(provider.NameOpenAI, err, a.config.APIKey)
}

// contentPart encodes the document as a data-URL image part for images and as
// an inline base64 file part for everything else.
func contentPart(req provider.ExtractRequest) openaisdk.ChatCompletionContentPartUnionParam {
	dataURL := "data:" + req.MediaType + ";base64," + base64.StdEncoding.EncodeToString(req.Content)
	if provider.IsImage(req.MediaType) {
		return openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{URL: dataURL})
	}
	return openaisdk.FileContentPart(openaisdk.ChatCompletionContentPartFileFileParam{
		FileData: openaisdk.String(dataURL),
		Filename: openaisdk.String(filename(req)),
	})
}

func filename(req provider.ExtractRequest) string {
	name := "document"
	if req.Chunk != nil && req.Chunk.Total > 1 {
		name += "-part"
	}
	switch {
	case provider.IsPDF(req.MediaType):
		return name + ".pdf"
	case provider.IsText(req.MediaType):
		return name + ".txt"
	default:
		return name
	}
}
