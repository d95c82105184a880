package security

import (
	"regexp"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every secret the Redactor finds.
const RedactPlaceholder = "***REDACTED***"

// secretKey matches config keys that hold a secret: "github_token",
// "api_key", "status_token". Keys merely starting with one, like
// "token_url", do not match.
var secretKey = regexp.MustCompile(`(?i)(secret|token|password|key)$`)

// tokenShapes catch credentials that reach a message without being
// registered, such as a token echoed back in an upstream error body.
var tokenShapes = []*regexp.Regexp{
	regexp.MustCompile(`(ghp_|gho_|ghu_|ghs_|ghr_|github_pat_)[a-zA-Z0-9_]{20,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=\-]{8,}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_\-]+\.eyJ[a-zA-Z0-9_\-]+\.[a-zA-Z0-9_\-]+`),
}

// Redactor scrubs secrets from strings. Safe for concurrent use.
type Redactor struct {
	mu    sync.RWMutex
	store *CredentialStore
}

// NewRedactor returns a Redactor that knows only the token shapes until
// Watch links it to a store.
func NewRedactor() *Redactor {
	return &Redactor{}
}

// Watch links store. Values set on it later are redacted too.
func (r *Redactor) Watch(store *CredentialStore) {
	r.mu.Lock()
	r.store = store
	r.mu.Unlock()
}

// Redact returns s with every token shape and registered secret replaced.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	for _, re := range tokenShapes {
		s = re.ReplaceAllString(s, RedactPlaceholder)
	}

	r.mu.RLock()
	store := r.store
	r.mu.RUnlock()
	if store == nil {
		return s
	}
	for _, v := range store.secrets() {
		s = strings.ReplaceAll(s, v, RedactPlaceholder)
	}
	return s
}

// RedactMap scrubs a decoded config document in place. Non-empty strings
// under a secret-looking key are replaced outright; every other string is
// passed through Redact.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		m[k] = r.redactValue(k, v)
	}
}

func (r *Redactor) redactValue(key string, v any) any {
	switch val := v.(type) {
	case string:
		if val != "" && secretKey.MatchString(key) {
			return RedactPlaceholder
		}
		return r.Redact(val)
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(key, item)
		}
	}
	return v
}
