// Package util holds small shared helpers for templates and text.
package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// RenderTemplate renders a prompt template with the given data. Directives
// that could execute or include arbitrary templates are rejected, since
// template text comes from user-editable config.
func RenderTemplate(tmpl string, data map[string]interface{}) (string, error) {
	forbidden := []string{"{{call", "{{define", "{{template", "{{block"}
	for _, directive := range forbidden {
		if strings.Contains(tmpl, directive) {
			return "", fmt.Errorf("template contains forbidden directive: %s", directive)
		}
	}

	t, err := template.New("prompt").
		Option("missingkey=error").
		Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// TruncateString truncates a string to maxLen runes, appending an ellipsis
// marker when truncation occurred. Rune-based so multi-byte characters are
// never split.
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
