package vector

import (
	"fmt"
	"unicode/utf8"

	"github.com/osteele/liquid"

	"github.com/Aman-CERP/ftscore/internal/errors"
)

// promptEngine is shared across every embedder's template rendering; Liquid
// engines hold no per-template state, so one instance serves the whole
// process (spec §4.6 "Prompt template (Liquid with {{doc.field}} and
// {{fields}})").
var promptEngine = liquid.NewEngine()

// RenderDocumentTemplate renders tmpl against one document's merged field
// view, exposing `doc.<field>` for direct access and `fields` as the list
// of field names present (spec §4.6). Rendered output longer than maxBytes
// is truncated on a rune boundary, matching documentTemplateMaxBytes.
func RenderDocumentTemplate(tmpl string, doc map[string]any, maxBytes int) (string, error) {
	fields := make([]string, 0, len(doc))
	for name := range doc {
		fields = append(fields, name)
	}

	bindings := map[string]any{
		"doc":    doc,
		"fields": fields,
	}

	out, err := promptEngine.ParseAndRenderString(tmpl, bindings)
	if err != nil {
		return "", errors.New(errors.CodeEmbedTemplate, fmt.Sprintf("render document template: %v", err), err)
	}
	if maxBytes > 0 && len(out) > maxBytes {
		out = truncateOnRuneBoundary(out, maxBytes)
	}
	return out, nil
}

// RenderQueryTemplate renders a query-time prompt, exposing `q` as the raw
// search string (spec §4.6 "render q through the embedder's query
// template").
func RenderQueryTemplate(tmpl, q string) (string, error) {
	if tmpl == "" {
		return q, nil
	}
	out, err := promptEngine.ParseAndRenderString(tmpl, map[string]any{"q": q})
	if err != nil {
		return "", errors.New(errors.CodeEmbedTemplate, fmt.Sprintf("render query template: %v", err), err)
	}
	return out, nil
}

func truncateOnRuneBoundary(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	b := s[:maxBytes]
	for len(b) > 0 {
		if r, _ := utf8.DecodeLastRuneInString(b); r != utf8.RuneError {
			return b
		}
		b = b[:len(b)-1]
	}
	return b
}
