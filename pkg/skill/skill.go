// Package skill resolves skill references to default event parameters. The
// resolution mechanism itself is an external collaborator; this package
// defines the consumed contract and a file-backed implementation for local
// use.
package skill

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
)

// Resolver supplies default parameters for a skill reference. Resolved
// values merge under caller-supplied parameters; callers win on conflict.
type Resolver interface {
	Resolve(ref string) (map[string]any, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ref string) (map[string]any, error)

func (f ResolverFunc) Resolve(ref string) (map[string]any, error) {
	return f(ref)
}

// FileResolver reads skill parameter documents from <root>/skills/<ref>.json.
type FileResolver struct {
	root string
}

func NewFileResolver(root string) *FileResolver {
	return &FileResolver{root: root}
}

func (r *FileResolver) Resolve(ref string) (map[string]any, error) {
	body, err := os.ReadFile(path.Join(r.root, "skills", ref+".json"))
	if err != nil {
		return nil, fmt.Errorf("skill %q not resolvable: %w", ref, err)
	}

	var params map[string]any

	if err := json.Unmarshal(body, &params); err != nil {
		return nil, fmt.Errorf("skill %q is not a valid parameter document: %w", ref, err)
	}

	return params, nil
}

// StaticResolver serves a fixed in-memory table, mainly for tests.
type StaticResolver map[string]map[string]any

func (r StaticResolver) Resolve(ref string) (map[string]any, error) {
	params, ok := r[ref]
	if !ok {
		return nil, fmt.Errorf("skill %q not resolvable", ref)
	}

	return params, nil
}
