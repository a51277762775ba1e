package audit

import (
	"encoding/json"
	"net/url"
	"strings"
)

const (
	redactedPlaceholder  = "[REDACTED]"
	truncatedPlaceholder = "[TRUNCATED]"
	depthPlaceholder     = "[DEPTH LIMIT]"
)

// defaultSensitiveTerms match field names whose values must never reach
// a stored audit record unmasked.
var defaultSensitiveTerms = []string{
	"password", "token", "secret", "key", "authorization",
	"credential", "cookie", "session", "signature",
}

// Sanitizer redacts sensitive fields and bounds payload size before an
// entry is handed to a sink.
type Sanitizer struct {
	terms    []string
	maxDepth int
	maxBytes int
}

// NewSanitizer builds a sanitizer with the default term list plus any
// configured extras. maxDepth bounds recursion on hostile payloads;
// maxBytes truncates raw bodies before parsing.
func NewSanitizer(extraTerms []string, maxDepth, maxBytes int) *Sanitizer {
	if maxDepth <= 0 {
		maxDepth = 8
	}
	if maxBytes <= 0 {
		maxBytes = 8192
	}
	terms := make([]string, 0, len(defaultSensitiveTerms)+len(extraTerms))
	terms = append(terms, defaultSensitiveTerms...)
	for _, t := range extraTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &Sanitizer{terms: terms, maxDepth: maxDepth, maxBytes: maxBytes}
}

// Body truncates, parses and sanitizes a raw request body. Non-JSON
// bodies come back as a masked-length marker rather than raw content.
func (s *Sanitizer) Body(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	truncated := false
	if len(raw) > s.maxBytes {
		raw = raw[:s.maxBytes]
		truncated = true
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		if truncated {
			return truncatedPlaceholder
		}
		return map[string]any{"unparsed_bytes": len(raw)}
	}
	out := s.value("", parsed, 0)
	if truncated {
		return map[string]any{"truncated": true, "body": out}
	}
	return out
}

// Query sanitizes URL query parameters.
func (s *Sanitizer) Query(values url.Values) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, vs := range values {
		v := strings.Join(vs, ",")
		if s.sensitive(k) {
			out[k] = maskString(v)
		} else {
			out[k] = v
		}
	}
	return out
}

// value sanitizes recursively. The field name of the enclosing key
// decides masking; containers under a sensitive key are masked whole.
func (s *Sanitizer) value(field string, v any, depth int) any {
	if depth > s.maxDepth {
		return depthPlaceholder
	}
	if field != "" && s.sensitive(field) {
		return maskValue(v)
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = s.value(k, child, depth+1)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = s.value("", child, depth+1)
		}
		return out
	default:
		return v
	}
}

func (s *Sanitizer) sensitive(field string) bool {
	f := strings.ToLower(field)
	for _, term := range s.terms {
		if strings.Contains(f, term) {
			return true
		}
	}
	return false
}

// maskValue masks scalars; containers under a sensitive field collapse to
// the placeholder entirely so nothing inside leaks.
func maskValue(v any) any {
	if str, ok := v.(string); ok {
		return maskString(str)
	}
	return redactedPlaceholder
}

// maskString keeps a two-character prefix and suffix for strings longer
// than 4 characters, and the fixed placeholder otherwise.
func maskString(v string) string {
	if len(v) > 4 {
		return v[:2] + "****" + v[len(v)-2:]
	}
	return redactedPlaceholder
}
