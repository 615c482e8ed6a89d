// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Relay Contributors

package provider

import (
	"fmt"
	"strings"
)

const extractInstruction = "Extract all text from this document. Preserve formatting, structure, tables, and lists."

// DefaultDocumentType is used when an analyze request names no type.
const DefaultDocumentType = "document"

// ExtractPrompt is the instruction sent alongside the document bytes.
func ExtractPrompt(chunk *ChunkInfo) string {
	if chunk == nil || chunk.Total <= 0 {
		return extractInstruction
	}
	return fmt.Sprintf("%s\n\nThis is chunk %d of %d. Extract all visible text from this section.",
		extractInstruction, chunk.Index+1, chunk.Total)
}

// AnalyzePrompt embeds the extracted text in the analysis instruction.
func AnalyzePrompt(req AnalyzeRequest) string {
	docType := strings.TrimSpace(req.DocumentType)
	if docType == "" {
		docType = DefaultDocumentType
	}
	return fmt.Sprintf("Analyze this %s document and extract structured data:\n\n%s", docType, req.Text)
}

// IsImage reports whether mediaType names an image format.
func IsImage(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(mediaType), "image/")
}

// IsPDF reports whether mediaType is application/pdf.
func IsPDF(mediaType string) bool {
	return strings.EqualFold(baseMediaType(mediaType), "application/pdf")
}

// IsText reports whether mediaType is a text/* format.
func IsText(mediaType string) bool {
	return strings.HasPrefix(strings.ToLower(mediaType), "text/")
}

func baseMediaType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.TrimSpace(mediaType)
}
