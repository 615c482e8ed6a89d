// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Help(t *testing.T) {
	out, err := runCLI(t, "", "--help")
	require.NoError(t, err)

	for _, sub := range []string{"start", "extract", "analyze", "health", "route", "jobs", "doctor", "secret", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestRootCommand_GlobalFlags(t *testing.T) {
	out, err := runCLI(t, "", "--verbose", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--config")
	assert.Contains(t, out, "--data-dir")
	assert.Contains(t, out, "--env-file")
	assert.Contains(t, out, "--verbose")
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "relay dev")
}

func TestStartCommand_MissingConfig(t *testing.T) {
	_, err := runCLI(t, "", "start", "--config", "/nonexistent/relay.yaml")
	assert.Error(t, err)
}

func TestInvalidConfigIsRejected(t *testing.T) {
	path := writeConfig(t, "routing:\n  extract_text: [google, nobody]\n")
	_, err := runCLI(t, "", "route", "extract_text", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nobody")
}

func TestEnvFileOverridesConfig(t *testing.T) {
	path := writeConfig(t, memoryConfig)
	envFile := writeFile(t, ".env", []byte("RELAY_ROUTING_EXTRACT_TEXT=openai\n"))
	t.Cleanup(func() { _ = os.Unsetenv("RELAY_ROUTING_EXTRACT_TEXT") })

	out, err := runCLI(t, "", "route", "extract_text", "--config", path, "--env-file", envFile)
	require.NoError(t, err)
	assert.Contains(t, out, "- openai")
	assert.NotContains(t, out, "google")
}

func TestEnvFileMissing(t *testing.T) {
	_, err := runCLI(t, "", "version", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
