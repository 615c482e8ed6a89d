// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package anthropic_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relay-dev/relay/internal/provider"
	"github.com/relay-dev/relay/internal/provider/anthropic"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-ant-test-key-not-real"

func messageResponse(text string) map[string]any {
	content := []any{}
	if text != "" {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	return map[string]any{
		"id":            "msg_01",
		"type":          "message",
		"role":          "assistant",
		"model":         "claude-sonnet-4-5",
		"content":       content,
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage":         map[string]any{"input_tokens": 12, "output_tokens": 5},
	}
}

// newMessagesServer returns a mock Messages API and a counter of requests it served.
func newMessagesServer(t *testing.T, status int, body any, inspect func(map[string]any)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, testKey, r.Header.Get("x-api-key"))
		if inspect != nil {
			raw, _ := io.ReadAll(r.Body)
			var req map[string]any
			require.NoError(t, json.Unmarshal(raw, &req))
			inspect(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func mustNewAdapter(t *testing.T, cfg anthropic.Config) *anthropic.Adapter {
	t.Helper()
	a, err := anthropic.New(cfg)
	require.NoError(t, err)
	return a
}

func TestAdapter_Defaults(t *testing.T) {
	a := mustNewAdapter(t, anthropic.Config{APIKey: testKey})
	assert.Equal(t, "anthropic", a.Name())
	assert.Equal(t, "claude-sonnet-4-5", a.Model())
}

func TestAdapter_NegativeTimeout(t *testing.T) {
	_, err := anthropic.New(anthropic.Config{Timeout: -time.Second})
	require.Error(t, err)
	assert.True(t, relayerr.IsInvalidInput(err))
}

func TestAdapter_MissingKeyFailsPerCall(t *testing.T) {
	srv, hits := newMessagesServer(t, http.StatusOK, messageResponse("x"), nil)
	a := mustNewAdapter(t, anthropic.Config{BaseURL: srv.URL})

	_, err := a.Analyze(context.Background(), provider.AnalyzeRequest{Text: "hello"})
	require.Error(t, err)
	assert.True(t, relayerr.IsConfigurationMissing(err))
	assert.Zero(t, hits.Load(), "no request without a credential")
}

func TestAdapter_Extract(t *testing.T) {
	srv, hits := newMessagesServer(t, http.StatusOK, messageResponse("Page one text"), func(req map[string]any) {
		assert.Equal(t, "claude-sonnet-4-5", req["model"])
		assert.EqualValues(t, provider.ExtractMaxTokens, req["max_tokens"])

		msgs := req["messages"].([]any)
		require.Len(t, msgs, 1)
		content := msgs[0].(map[string]any)["content"].([]any)
		require.Len(t, content, 2)
		doc := content[0].(map[string]any)
		assert.Equal(t, "document", doc["type"])
		assert.Equal(t, "base64", doc["source"].(map[string]any)["type"])
		prompt := content[1].(map[string]any)["text"].(string)
		assert.Contains(t, prompt, "This is chunk 1 of 2.")
	})
	a := mustNewAdapter(t, anthropic.Config{APIKey: testKey, BaseURL: srv.URL})

	out, err := a.Extract(context.Background(), provider.ExtractRequest{
		Content:   []byte("%PDF-1.7 fake"),
		MediaType: "application/pdf",
		Chunk:     &provider.ChunkInfo{Index: 0, Total: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "Page one text", out)
	assert.Equal(t, int32(1), hits.Load())
}

func TestAdapter_Analyze(t *testing.T) {
	srv, _ := newMessagesServer(t, http.StatusOK, messageResponse(`{"total": 42}`), func(req map[string]any) {
		assert.EqualValues(t, provider.AnalyzeMaxTokens, req["max_tokens"])
	})
	a := mustNewAdapter(t, anthropic.Config{APIKey: testKey, BaseURL: srv.URL, Model: "claude-haiku-4-5"})

	out, err := a.Analyze(context.Background(), provider.AnalyzeRequest{Text: "Total: 42", DocumentType: "invoice"})
	require.NoError(t, err)
	assert.Equal(t, `{"total": 42}`, out)
}

func TestAdapter_UpstreamErrorIsSingleAttempt(t *testing.T) {
	body := map[string]any{"type": "error", "error": map[string]any{"type": "overloaded_error", "message": "Overloaded"}}
	srv, hits := newMessagesServer(t, 529, body, nil)
	a := mustNewAdapter(t, anthropic.Config{APIKey: testKey, BaseURL: srv.URL})

	_, err := a.Analyze(context.Background(), provider.AnalyzeRequest{Text: "x"})
	require.Error(t, err)
	assert.True(t, relayerr.IsUpstreamFailure(err))
	assert.Contains(t, err.Error(), "529")
	assert.Contains(t, err.Error(), "Overloaded")
	assert.NotContains(t, err.Error(), testKey)
	assert.Equal(t, int32(1), hits.Load(), "adapter must not retry")
}

func TestAdapter_EmptyTextIsSuccess(t *testing.T) {
	srv, hits := newMessagesServer(t, http.StatusOK, messageResponse(""), nil)
	a := mustNewAdapter(t, anthropic.Config{APIKey: testKey, BaseURL: srv.URL})

	out, err := a.Extract(context.Background(), provider.ExtractRequest{Content: []byte(" "), MediaType: "text/plain"})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, int32(1), hits.Load())
}

func TestAdapter_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := mustNewAdapter(t, anthropic.Config{APIKey: testKey, BaseURL: url, Timeout: 2 * time.Second})
	_, err := a.Analyze(context.Background(), provider.AnalyzeRequest{Text: "x"})
	require.Error(t, err)
	assert.True(t, relayerr.IsTransportFailure(err))
	assert.NotContains(t, err.Error(), testKey)
}

func TestDocumentBlock(t *testing.T) {
	pdf, err := anthropic.DocumentBlock(provider.ExtractRequest{Content: []byte("%PDF"), MediaType: "application/pdf"})
	require.NoError(t, err)
	require.NotNil(t, pdf.OfDocument)
	assert.NotNil(t, pdf.OfDocument.Source.OfBase64)

	img, err := anthropic.DocumentBlock(provider.ExtractRequest{Content: []byte{0x89, 'P', 'N', 'G'}, MediaType: "image/png"})
	require.NoError(t, err)
	assert.NotNil(t, img.OfImage)

	txt, err := anthropic.DocumentBlock(provider.ExtractRequest{Content: []byte("plain words"), MediaType: "text/plain"})
	require.NoError(t, err)
	require.NotNil(t, txt.OfDocument)
	assert.NotNil(t, txt.OfDocument.Source.OfText)

	_, err = anthropic.DocumentBlock(provider.ExtractRequest{Content: []byte{0xff, 0xfe, 0x00}, MediaType: "application/octet-stream"})
	require.Error(t, err)
	assert.True(t, relayerr.IsAttemptFailure(err))
}
