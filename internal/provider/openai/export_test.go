// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package openai

import (
	openaisdk "github.com/openai/openai-go"
	"github.com/relay-dev/relay/internal/provider"
)

// ContentPart exposes contentPart for white-box testing.
var ContentPart = func(req provider.ExtractRequest) openaisdk.ChatCompletionContentPartUnionParam {
	return contentPart(req)
}
