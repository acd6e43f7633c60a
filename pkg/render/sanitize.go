package render

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/illmade-knight/go-apicache/pkg/types"
)

var (
	scriptOrStyle = regexp.MustCompile(`(?is)<(script|style)[^>]*?>.*?</(script|style)>`)
	anyTag        = regexp.MustCompile(`(?s)<[^\s<>][^<>]*>`)
	percentOctet  = regexp.MustCompile(`%[a-fA-F0-9]{2}`)
	whitespaceRun = regexp.MustCompile(`[\r\n\t ]+`)
)

// SanitizePayload returns a copy of p in which every string has been passed
// through SanitizeText. Numbers, booleans and nulls are kept as they are.
// Object keys are not changed.
func SanitizePayload(p types.Payload) types.Payload {
	switch v := p.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = SanitizePayload(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = SanitizePayload(item)
		}
		return out
	case string:
		return SanitizeText(v)
	default:
		return v
	}
}

// SanitizeText makes s safe as plain text: it drops invalid UTF-8 strings
// entirely, strips markup and percent-encoded octets, and collapses whitespace.
func SanitizeText(s string) string {
	if !utf8.ValidString(s) {
		return ""
	}
	if strings.ContainsRune(s, '<') {
		s = scriptOrStyle.ReplaceAllString(s, "")
		s = anyTag.ReplaceAllString(s, "")
		s = strings.ReplaceAll(s, "<", "&lt;")
	}
	for percentOctet.MatchString(s) {
		s = percentOctet.ReplaceAllString(s, "")
	}
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
