// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

// Package secrets keeps provider credentials in the OS keyring and resolves
// keyring:// references found in configuration.
package secrets

// DefaultService is the keyring service relay stores provider keys under.
const DefaultService = "relay"

// Store provides secret storage scoped by service.
type Store interface {
	// Set saves a secret value under the given service and key.
	Set(service, key, value string) error

	// Get fetches the secret value for the given service and key.
	// A missing key yields an error with code secret.keyring.not_found.
	Get(service, key string) (string, error)

	// Delete removes the secret for the given service and key.
	Delete(service, key string) error

	// List returns all key names stored under the given service.
	List(service string) ([]string, error)
}

// URI returns the keyring:// reference for a key under DefaultService.
func URI(key string) string {
	return keyringScheme + DefaultService + "/" + key
}
