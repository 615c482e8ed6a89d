// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package secrets

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	relayerr "github.com/relay-dev/relay/pkg/errors"
)

const keyringScheme = "keyring://"

// IsKeyringURI reports whether value uses the keyring:// URI scheme.
func IsKeyringURI(value string) bool {
	return strings.HasPrefix(value, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", relayerr.Errorf(relayerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	service, key, ok := strings.Cut(strings.TrimPrefix(uri, keyringScheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", relayerr.Errorf(relayerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// Resolve returns value unchanged unless it is a keyring:// URI, in which
// case the referenced secret is returned.
func Resolve(store Store, value string) (string, error) {
	if !IsKeyringURI(value) {
		return value, nil
	}

	service, key, err := ParseKeyringURI(value)
	if err != nil {
		return "", err
	}

	secret, err := store.Get(service, key)
	if err != nil {
		return "", relayerr.Wrapf(err, relayerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every keyring:// value held by v with the
// secret it points to. It runs after config files and env are loaded.
//
// A reference that cannot be resolved is replaced with the empty string, so
// the affected provider reports a missing credential on use instead of
// sending the URI upstream as a key. It returns the config keys that failed.
func ResolveViperSecrets(v *viper.Viper, store Store) []string {
	var failed []string
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsKeyringURI(val) {
			continue
		}

		resolved, err := Resolve(store, val)
		if err != nil {
			level := slog.LevelWarn
			if relayerr.IsNotFound(err) {
				level = slog.LevelDebug
			}
			slog.Log(context.Background(), level, "keyring reference not resolved",
				"config_key", key,
				"error", err)
			v.Set(key, "")
			failed = append(failed, key)
			continue
		}

		v.Set(key, resolved)
	}
	return failed
}
