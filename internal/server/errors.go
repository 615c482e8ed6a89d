// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package server

// jobError is the flat error body of the job endpoint:
// {"error": "...", "last_error": "..."}. It implements huma.StatusError so
// huma writes it as-is instead of a problem document.
type jobError struct {
	status    int
	Message   string `json:"error"`
	LastError string `json:"last_error,omitempty"`
}

func newJobError(status int, msg, lastError string) *jobError {
	return &jobError{status: status, Message: msg, LastError: lastError}
}

func (e *jobError) Error() string {
	if e.LastError != "" {
		return e.Message + ": " + e.LastError
	}
	return e.Message
}

func (e *jobError) GetStatus() int { return e.status }
