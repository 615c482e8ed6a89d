// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

// Command openapi-gen writes the gateway's OpenAPI document.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/relay-dev/relay/internal/provider"
	"github.com/relay-dev/relay/internal/router"
	"github.com/relay-dev/relay/internal/server"
	"github.com/relay-dev/relay/internal/store"
	relayerr "github.com/relay-dev/relay/pkg/errors"
	"github.com/relay-dev/relay/pkg/health"
)

func main() {
	spec, err := generateSpec()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := "api/openapi/spec.json"
	if len(os.Args) > 1 {
		outPath = os.Args[1]
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output dir: %v\n", err)
		os.Exit(1)
	}

	if err := os.WriteFile(outPath, spec, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing spec: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OpenAPI spec written to %s\n", outPath)
}

// generateSpec builds a server with every route registered and returns the
// OpenAPI document huma derives from the handler types.
func generateSpec() ([]byte, error) {
	svc, err := server.NewServices(stubRouter{}, stubHealth{}, stubJobs{}, provider.BuiltinNames)
	if err != nil {
		return nil, relayerr.Errorf(relayerr.CodeCLISetupFailure, "creating services: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		Services:   svc,
	})
	if err != nil {
		return nil, relayerr.Errorf(relayerr.CodeCLISetupFailure, "creating server: %w", err)
	}

	return json.MarshalIndent(srv.API().OpenAPI(), "", "  ")
}

// Handlers are never invoked during generation.

type stubRouter struct{}

func (stubRouter) Submit(context.Context, router.Job) (*router.Result, error) { return nil, nil }

type stubHealth struct{}

func (stubHealth) Get(context.Context, []string) (map[string]health.Record, error) { return nil, nil }

type stubJobs struct{}

func (stubJobs) Query(context.Context, store.JobFilter) ([]*store.JobEntry, error) { return nil, nil }
