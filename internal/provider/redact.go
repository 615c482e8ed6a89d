// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package provider

import (
	"regexp"
	"slices"
	"strings"
)

const redacted = "[REDACTED]"

// credentialPatterns match well-known API key shapes that may leak into
// upstream error bodies or URLs.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`sk-proj-[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{10,}`),
	regexp.MustCompile(`(?i)([?&](?:key|api_key)=)[^&\s"']+`),
}

// Redact strips credentials from msg: every literal secret provided and every
// well-known key pattern is replaced with [REDACTED].
func Redact(msg string, secrets ...string) string {
	// Longest first so a secret that contains another is removed whole.
	sorted := slices.Clone(secrets)
	slices.SortFunc(sorted, func(a, b string) int { return len(b) - len(a) })
	for _, s := range sorted {
		if len(s) < 4 {
			continue
		}
		msg = strings.ReplaceAll(msg, s, redacted)
	}
	for _, re := range credentialPatterns {
		if re.NumSubexp() > 0 {
			msg = re.ReplaceAllString(msg, "${1}"+redacted)
			continue
		}
		msg = re.ReplaceAllString(msg, redacted)
	}
	return msg
}
