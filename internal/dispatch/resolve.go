package dispatch

import (
	"errors"
	"strings"

	"github.com/sahilm/fuzzy"
)

// ErrUnresolved is returned when no clip matches a description.
var ErrUnresolved = errors.New("dispatch: no clip matches description")

// Resolver maps free-text animation descriptions to clip names.
type Resolver struct {
	names  []string
	folded map[string]string
}

func NewResolver(names []string) *Resolver {
	r := &Resolver{
		names:  append([]string(nil), names...),
		folded: make(map[string]string, len(names)),
	}
	for _, n := range names {
		key := strings.ToLower(n)
		if _, ok := r.folded[key]; !ok {
			r.folded[key] = n
		}
	}
	return r
}

// Resolve tries an exact name, then a case-insensitive one, then the best
// fuzzy match.
func (r *Resolver) Resolve(description string) (string, error) {
	d := strings.TrimSpace(description)
	if d == "" {
		return "", ErrUnresolved
	}
	for _, n := range r.names {
		if n == d {
			return n, nil
		}
	}
	if n, ok := r.folded[strings.ToLower(d)]; ok {
		return n, nil
	}
	matches := fuzzy.Find(d, r.names)
	if len(matches) == 0 {
		return "", ErrUnresolved
	}
	return matches[0].Str, nil
}

func (r *Resolver) Names() []string {
	return append([]string(nil), r.names...)
}
