// Package keypool retries provider calls across an ordered pool of API keys.
//
// A Pool is built once from configuration and passed explicitly to call
// sites. Call tries each credential at most once; backoff between full
// rotations is a separate decorator (Retry).
package keypool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyPool is returned when a pool has no usable credentials.
var ErrEmptyPool = errors.New("credential pool is empty")

// Credential is one API key. Label identifies it in logs without exposing Key.
type Credential struct {
	Label string
	Key   string
}

// String never prints the key.
func (c Credential) String() string {
	return c.Label
}

// Pool is an ordered, immutable list of credentials for one provider.
type Pool struct {
	provider string
	creds    []Credential
}

// NewPool builds a pool from raw keys. Blank keys (for example unresolved
// ${ENV} references) are dropped and duplicates keep their first position.
func NewPool(provider string, keys []string) (*Pool, error) {
	seen := make(map[string]bool, len(keys))
	p := &Pool{provider: provider}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		p.creds = append(p.creds, Credential{
			Label: fmt.Sprintf("%s#%d", provider, len(p.creds)+1),
			Key:   k,
		})
	}
	if len(p.creds) == 0 {
		return nil, fmt.Errorf("%w: provider %s", ErrEmptyPool, provider)
	}
	return p, nil
}

// Provider returns the provider name the pool belongs to.
func (p *Pool) Provider() string {
	return p.provider
}

// Len returns the number of credentials.
func (p *Pool) Len() int {
	return len(p.creds)
}

// Credentials returns a copy of the credentials in rotation order.
func (p *Pool) Credentials() []Credential {
	out := make([]Credential, len(p.creds))
	copy(out, p.creds)
	return out
}

// Labels returns the credential labels in rotation order.
func (p *Pool) Labels() []string {
	labels := make([]string, len(p.creds))
	for i, c := range p.creds {
		labels[i] = c.Label
	}
	return labels
}
