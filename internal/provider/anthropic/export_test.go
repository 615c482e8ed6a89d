// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package anthropic

import (
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/relay-dev/relay/internal/provider"
)

// DocumentBlock exposes documentBlock for white-box testing.
var DocumentBlock = func(req provider.ExtractRequest) (anthropicsdk.ContentBlockParamUnion, error) {
	return documentBlock(req)
}
