// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
//
// Codes follow area.operation.reason; the trailing reason segment drives
// classification (IsNotFound, IsInvalidInput, ...) and HTTP status mapping.
type Code string

const (
	CodeStoreEntityNotFound     Code = "store.entity.get.not_found"
	CodeStoreDatabaseFailure    Code = "store.database.failure"
	CodeStoreBackendUnsupported Code = "store.backend.unsupported"
	CodeStoreInvalidInput       Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeProviderConfigMissing    Code = "provider.config.missing"
	CodeProviderTransportFailure Code = "provider.transport.failure"
	CodeProviderUpstreamFailure  Code = "provider.upstream.failure"
	CodeProviderResponseInvalid  Code = "provider.response.invalid"
	CodeProviderRequestInvalid   Code = "provider.request.invalid"
	CodeProviderNotFound         Code = "provider.registry.not_found"
	CodeProviderKeyInvalid       Code = "provider.key.invalid"
	CodeProviderKeyCheckFailed   Code = "provider.key.check.failure"

	CodeRouterRequestInvalid    Code = "router.request.invalid"
	CodeRouterNoProviders       Code = "router.routing.no_providers"
	CodeRouterExhausted         Code = "router.routing.exhausted"
	CodeRouterHealthReadFailure Code = "router.health.read_failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLIGatewayNotRunning Code = "cli.gateway.not_running"
	CodeCLIRequestFailure    Code = "cli.request.failure"
	CodeCLIResponseInvalid   Code = "cli.response.invalid"
	CodeCLISetupFailure      Code = "cli.setup.failure"
	CodeCLIInputInvalid      Code = "cli.input.invalid"

	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretNotFound       Code = "secret.keyring.not_found"
	CodeSecretInvalidInput   Code = "secret.input.invalid"
	CodeSecretStoreFailure   Code = "secret.store.failure"
	CodeSecretDeleteFailure  Code = "secret.delete.failure"
	CodeSecretListFailure    Code = "secret.list.failure"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldJobType(value string) Attr {
	return Field("job_type", value)
}

func FieldLastError(value string) Attr {
	return Field("last_error", value)
}

func FieldStatusCode(value int) Attr {
	return Field("status_code", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// CodeOf returns the innermost code in the chain, or "" for uncoded errors.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

// StringField returns a string-valued field from the error context.
func StringField(err error, key string) string {
	v, ok := FieldsOf(err)[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsInvalidInput(err error) bool {
	return isInvalidReason(reason(CodeOf(err)))
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func IsTransportFailure(err error) bool {
	return HasCode(err, CodeProviderTransportFailure)
}

func IsConfigurationMissing(err error) bool {
	return HasCode(err, CodeProviderConfigMissing)
}

// IsAttemptFailure reports whether err is one of the per-attempt provider
// failure kinds the router tolerates and fails over from.
func IsAttemptFailure(err error) bool {
	return IsConfigurationMissing(err) || IsTransportFailure(err) || IsUpstreamFailure(err) ||
		HasCode(err, CodeProviderResponseInvalid) || HasCode(err, CodeProviderRequestInvalid)
}

// Attempt failure kinds, as reported by AttemptKind.
const (
	KindConfiguration = "configuration"
	KindTransport     = "transport"
	KindUpstream      = "upstream"
	KindResponse      = "response"
	KindRequest       = "request"
	KindUnexpected    = "unexpected"
)

// AttemptKind labels a failed provider attempt for logs and metrics. Errors
// outside the provider failure kinds are KindUnexpected; nil is "".
func AttemptKind(err error) string {
	switch {
	case err == nil:
		return ""
	case !IsAttemptFailure(err):
		return KindUnexpected
	case IsConfigurationMissing(err):
		return KindConfiguration
	case IsTransportFailure(err):
		return KindTransport
	case IsUpstreamFailure(err):
		return KindUpstream
	case HasCode(err, CodeProviderResponseInvalid):
		return KindResponse
	default:
		return KindRequest
	}
}

func HTTPStatus(err error) int {
	return HTTPStatusFromCode(CodeOf(err))
}

func HTTPStatusFromCode(code Code) int {
	switch {
	case code == CodeRouterNoProviders:
		return http.StatusServiceUnavailable
	case code == CodeRouterExhausted:
		return http.StatusInternalServerError
	case reason(code) == "not_found":
		return http.StatusNotFound
	case isInvalidReason(reason(code)):
		return http.StatusBadRequest
	case strings.Contains(string(code), "upstream") && reason(code) == "failure":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func isInvalidReason(r string) bool {
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
