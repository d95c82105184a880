// Package security keeps the daemon's secrets out of its logs and out of
// the config dump.
//
// The archive token, the service API key and every issued token are
// registered by name in a CredentialStore. A Redactor watching that store
// replaces their values, along with token-shaped strings nobody registered,
// and RedactingHandler applies it to every log record.
package security

import (
	"cmp"
	"slices"
	"strings"
	"sync"
)

// CredentialStore maps credential names to their current values. The
// issuer replaces "issued_token" while the loop runs, so access is locked.
type CredentialStore struct {
	mu     sync.RWMutex
	byName map[string]string
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{byName: make(map[string]string)}
}

// Set records value under name. An empty value clears the entry.
func (s *CredentialStore) Set(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == "" {
		delete(s.byName, name)
		return
	}
	s.byName[name] = value
}

// secrets returns the registered values, longest first, so a secret that
// contains another is replaced whole.
func (s *CredentialStore) secrets() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.byName))
	for _, v := range s.byName {
		out = append(out, v)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), strings.Compare(a, b))
	})
	return slices.Compact(out)
}
