// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package provider

import (
	"context"
)

// Names of the built-in provider adapters.
const (
	NameAnthropic = "anthropic"
	NameOpenAI    = "openai"
	NameGoogle    = "google"
)

// BuiltinNames lists every provider this module ships an adapter for.
var BuiltinNames = []string{NameAnthropic, NameGoogle, NameOpenAI}

// IsBuiltin reports whether name has a built-in adapter.
func IsBuiltin(name string) bool {
	switch name {
	case NameAnthropic, NameOpenAI, NameGoogle:
		return true
	}
	return false
}

// Adapter is the uniform contract every AI provider implements.
//
// Each call makes at most one outbound request and never retries; failover
// across providers is the router's job. Failures are returned as coded
// errors: provider.config.missing, provider.transport.failure or
// provider.upstream.failure.
type Adapter interface {
	Name() string
	Extract(ctx context.Context, req ExtractRequest) (string, error)
	Analyze(ctx context.Context, req AnalyzeRequest) (string, error)
}

// ExtractRequest asks a provider to transcribe all text in a document.
type ExtractRequest struct {
	Content   []byte
	MediaType string
	Chunk     *ChunkInfo
}

// ChunkInfo positions a document slice within a larger document.
// Index is zero-based.
type ChunkInfo struct {
	Index int
	Total int
}

// AnalyzeRequest asks a provider for structured analysis of extracted text.
type AnalyzeRequest struct {
	Text         string
	DocumentType string
}

// Token ceilings sent with every request.
const (
	ExtractMaxTokens = 4096
	AnalyzeMaxTokens = 8192
)
