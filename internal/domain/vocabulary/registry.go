package vocabulary

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrConceptNotFound is returned by Resolve for a code the registry does not
// hold.
var ErrConceptNotFound = errors.New("concept not found")

// Resolver maps concept codes to ids. Domain services depend on this
// interface; *Registry is the production implementation.
type Resolver interface {
	Resolve(code string) (int64, error)
}

// Registry is an immutable code -> id table built once at startup.
type Registry struct {
	byCode map[string]int64
	byID   map[int64]string
}

// NewRegistry builds a registry from code/id pairs.
func NewRegistry(ids map[string]int64) *Registry {
	r := &Registry{
		byCode: make(map[string]int64, len(ids)),
		byID:   make(map[int64]string, len(ids)),
	}
	for code, id := range ids {
		r.byCode[code] = id
		r.byID[id] = code
	}
	return r
}

func (r *Registry) Resolve(code string) (int64, error) {
	id, ok := r.byCode[code]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrConceptNotFound, code)
	}
	return id, nil
}

// Code is the reverse lookup.
func (r *Registry) Code(id int64) (string, bool) {
	code, ok := r.byID[id]
	return code, ok
}

func (r *Registry) Len() int {
	return len(r.byCode)
}

// CodeFinder is the subset of Repository that Load needs.
type CodeFinder interface {
	FindByCodes(ctx context.Context, codes []string) ([]*Concept, error)
}

// Load resolves every code in required and fails if any of them is missing
// or ambiguous. The server refuses to start on error, which turns an
// unseeded database into a startup failure instead of per-request 500s.
func Load(ctx context.Context, finder CodeFinder, required []string) (*Registry, error) {
	concepts, err := finder.FindByCodes(ctx, required)
	if err != nil {
		return nil, fmt.Errorf("load concepts: %w", err)
	}

	ids := make(map[string]int64, len(required))
	var ambiguous []string
	for _, c := range concepts {
		if prev, ok := ids[c.Code]; ok && prev != c.ID {
			ambiguous = append(ambiguous, c.Code)
			continue
		}
		ids[c.Code] = c.ID
	}

	var missing []string
	for _, code := range required {
		if _, ok := ids[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: missing %s (run \"saude-server seed\")", ErrConceptNotFound, strings.Join(missing, ", "))
	}
	if len(ambiguous) > 0 {
		sort.Strings(ambiguous)
		return nil, fmt.Errorf("ambiguous concept codes: %s", strings.Join(ambiguous, ", "))
	}
	return NewRegistry(ids), nil
}
