// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/relay-dev/relay/internal/router"
	"github.com/relay-dev/relay/internal/server"
	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// defaultHTTPClient is the package-level HTTP client used by gateway commands.
// Jobs can walk several providers, so the timeout is generous.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Minute,
}

// gatewayClient provides HTTP access to a running relay gateway.
type gatewayClient struct {
	baseURL string
	http    *http.Client
}

// newGatewayClient creates a client targeting the given host:port address.
func newGatewayClient(addr string) *gatewayClient {
	return &gatewayClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
	}
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *gatewayClient) getJSON(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return relayerr.Errorf(relayerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	return c.do(req, dest)
}

// postJSON sends body as JSON and decodes the response into dest.
func (c *gatewayClient) postJSON(ctx context.Context, path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return relayerr.Errorf(relayerr.CodeCLIRequestFailure, "encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return relayerr.Errorf(relayerr.CodeCLIRequestFailure, "building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

// statusError is a non-200 gateway response.
type statusError struct {
	Status    int
	Message   string `json:"error"`
	LastError string `json:"last_error"`
	Detail    string `json:"detail"`
}

func (e *statusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Detail
	}
	if e.LastError != "" {
		return fmt.Sprintf("gateway returned status %d: %s (last error: %s)", e.Status, msg, e.LastError)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.Status, msg)
}

func (c *gatewayClient) do(req *http.Request, dest any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		if isDialError(err) {
			return relayerr.Errorf(relayerr.CodeCLIGatewayNotRunning,
				"gateway at %s is not running (connection refused)", req.URL.Host)
		}
		return relayerr.Errorf(relayerr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		se := &statusError{Status: resp.StatusCode}
		if json.Unmarshal(body, se) != nil || (se.Message == "" && se.Detail == "") {
			se.Message = string(bytes.TrimSpace(body))
		}
		return se
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return relayerr.Errorf(relayerr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// submit posts job to the gateway and converts the response to the same
// shape the local router returns, including its routing error codes.
func (c *gatewayClient) submit(ctx context.Context, job router.Job) (*router.Result, error) {
	var data server.JobData
	switch job.Type {
	case router.JobExtractText:
		data.Base64File = base64.StdEncoding.EncodeToString(job.Extract.Content)
		data.MediaType = job.Extract.MediaType
		if job.Extract.Chunk != nil {
			index, total := job.Extract.Chunk.Index, job.Extract.Chunk.Total
			data.ChunkIndex, data.TotalChunks = &index, &total
		}
	case router.JobAnalyzeContent:
		data.ExtractedText = job.Analyze.Text
		data.DocumentType = job.Analyze.DocumentType
	}

	body := map[string]any{"job_type": string(job.Type), "data": data}
	var out server.JobResponse
	if err := c.postJSON(ctx, "/api/v1/jobs", body, &out); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			switch se.Status {
			case http.StatusServiceUnavailable:
				return nil, relayerr.New(relayerr.CodeRouterNoProviders, se.Message)
			case http.StatusInternalServerError:
				if se.Message == "all providers failed" {
					return nil, relayerr.New(relayerr.CodeRouterExhausted, se.Message,
						relayerr.FieldLastError(se.LastError))
				}
			case http.StatusBadRequest:
				return nil, relayerr.New(relayerr.CodeRouterRequestInvalid, se.Message)
			}
		}
		return nil, err
	}

	output := out.Text
	if job.Type == router.JobAnalyzeContent {
		output = out.Analysis
	}
	return &router.Result{
		Output:    output,
		Provider:  out.Provider,
		LatencyMs: out.Latency,
		Cost:      out.Cost,
		Attempts:  out.Attempts,
	}, nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
