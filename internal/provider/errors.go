// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package provider

import (
	"context"
	stderrors "errors"
	"fmt"
	"unicode/utf8"

	relayerr "github.com/relay-dev/relay/pkg/errors"
)

// maxBodyInMessage bounds how much of an upstream response body is embedded
// in a ProviderError message.
const maxBodyInMessage = 512

// ConfigurationError reports that the named provider cannot be called because
// its configuration (usually the credential) is missing.
func ConfigurationError(name, msg string) error {
	return relayerr.New(relayerr.CodeProviderConfigMissing,
		fmt.Sprintf("%s: %s", name, msg),
		relayerr.FieldProvider(name))
}

// TransportError reports a network-level failure reaching the provider.
// The message is stripped of the given secrets.
func TransportError(name string, cause error, secrets ...string) error {
	msg := "request failed"
	if cause != nil {
		msg = cause.Error()
	}
	if stderrors.Is(cause, context.DeadlineExceeded) {
		msg = "request timed out: " + msg
	}
	return relayerr.New(relayerr.CodeProviderTransportFailure,
		fmt.Sprintf("%s: %s", name, Redact(msg, secrets...)),
		relayerr.FieldProvider(name))
}

// UpstreamError reports a non-success HTTP status from the provider. The
// message embeds the status and the (truncated, redacted) response detail.
func UpstreamError(name string, status int, detail string, secrets ...string) error {
	detail = Redact(detail, secrets...)
	if len(detail) > maxBodyInMessage {
		cut := maxBodyInMessage
		for cut > 0 && !utf8.RuneStart(detail[cut]) {
			cut--
		}
		detail = detail[:cut] + "..."
	}
	return relayerr.New(relayerr.CodeProviderUpstreamFailure,
		fmt.Sprintf("%s API error (status %d): %s", name, status, detail),
		relayerr.FieldProvider(name),
		relayerr.FieldStatusCode(status))
}

// MalformedResponseError reports a 2xx response missing the structure that
// carries the output (no choices, no candidates). An empty text in a
// well-formed response is a successful result, not this error.
func MalformedResponseError(name, missing string) error {
	return relayerr.New(relayerr.CodeProviderResponseInvalid,
		fmt.Sprintf("%s: response contained no %s", name, missing),
		relayerr.FieldProvider(name))
}

// UnsupportedMediaError reports a payload the provider cannot accept. The
// router treats it like any other attempt failure and moves on.
func UnsupportedMediaError(name, mediaType string) error {
	return relayerr.New(relayerr.CodeProviderRequestInvalid,
		fmt.Sprintf("%s: unsupported media type %q", name, mediaType),
		relayerr.FieldProvider(name))
}
