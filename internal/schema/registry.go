// Package schema holds the DefraDB collection definitions used by the
// store and applies them to a node.
package schema

import (
	"embed"
	"fmt"
	"strings"
)

//go:embed schemas/*.graphql
var schemaFS embed.FS

// Schema is one DefraDB collection definition.
type Schema struct {
	Name string // collection name, e.g. "Topic"
	SDL  string
}

// registry lists collections in the order they are applied. There are no
// relation fields between them, so order only keeps logs stable.
var registry = []string{
	"ContentArea",
	"Page",
	"Topic",
	"TopicPage",
	"BatchJob",
	"BatchResult",
}

// Names returns the registered collection names.
func Names() []string {
	return append([]string(nil), registry...)
}

// All returns every schema with its SDL loaded from the embedded files.
func All() ([]Schema, error) {
	out := make([]Schema, 0, len(registry))
	for _, name := range registry {
		s, err := load(name)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// Get returns a single schema by collection name.
func Get(name string) (*Schema, error) {
	for _, n := range registry {
		if n == name {
			return load(n)
		}
	}
	return nil, fmt.Errorf("schema not found: %s", name)
}

func load(name string) (*Schema, error) {
	content, err := schemaFS.ReadFile(fmt.Sprintf("schemas/%s.graphql", strings.ToLower(name)))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
	}
	return &Schema{Name: name, SDL: string(content)}, nil
}
