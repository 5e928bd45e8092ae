package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stratus-io/stratus/internal/ir"
)

// Attribute values may hold symbolic references to another resource's
// realized attributes, written as ref://<type>/<name>/<attribute.path>.
// References nest inside composite values and are discovered recursively.
const refScheme = "ref://"

// Ref is a parsed reference: a target identity plus an attribute path.
type Ref struct {
	Type     string
	Name     string
	AttrPath string // dotted path into the target's realized attributes
}

// Addr returns the target identity as a "type.name" address.
func (r Ref) Addr() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}

func (r Ref) String() string {
	return refScheme + r.Type + "/" + r.Name + "/" + r.AttrPath
}

// ParseRef parses a ref:// string. Returns false for anything else.
// ref://compute.Network/n1/self_link -> {compute.Network, n1, self_link}
func ParseRef(s string) (Ref, bool) {
	if !strings.HasPrefix(s, refScheme) {
		return Ref{}, false
	}
	parts := strings.SplitN(s[len(refScheme):], "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Ref{}, false
	}
	return Ref{Type: parts[0], Name: parts[1], AttrPath: parts[2]}, true
}

// IsRef reports whether v is a reference value.
func IsRef(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	_, ok = ParseRef(s)
	return ok
}

// ResolveReferences verifies that every reference in the configuration set
// points at a declared resource and returns the dependency edges implied by
// the references, keyed by consumer address. Attribute values are not
// mutated here; substitution happens during apply once producers realize.
func ResolveReferences(resources []*ir.Resource) (map[string][]string, error) {
	index := make(map[string]bool, len(resources))
	for _, res := range resources {
		index[res.Addr()] = true
	}

	edges := make(map[string][]string)
	for _, res := range resources {
		consumer := res.Addr()
		var walkErr error
		walkRefs(res.Attributes, "", func(path string, ref Ref) {
			if walkErr != nil {
				return
			}
			if !index[ref.Addr()] {
				walkErr = &UnresolvedReferenceError{
					Consumer: consumer,
					AttrPath: path,
					Target:   ref.Addr(),
				}
				return
			}
			if ref.Addr() != consumer {
				edges[consumer] = append(edges[consumer], ref.Addr())
			}
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}
	return edges, nil
}

// ExtractRefs returns every reference found in attrs.
func ExtractRefs(attrs map[string]any) []Ref {
	var refs []Ref
	walkRefs(attrs, "", func(_ string, ref Ref) {
		refs = append(refs, ref)
	})
	return refs
}

// walkRefs traverses an attribute value recursively, reporting every
// reference together with the attribute path where it was found. Map keys
// are visited in sorted order so errors and edge lists are deterministic.
func walkRefs(v any, path string, fn func(path string, ref Ref)) {
	switch val := v.(type) {
	case string:
		if ref, ok := ParseRef(val); ok {
			fn(path, ref)
		}
	case map[string]any:
		for _, k := range sortedKeys(val) {
			walkRefs(val[k], joinPath(path, k), fn)
		}
	case map[any]any:
		keyed := make(map[string]any, len(val))
		for k, v := range val {
			keyed[fmt.Sprintf("%v", k)] = v
		}
		for _, k := range sortedKeys(keyed) {
			walkRefs(keyed[k], joinPath(path, k), fn)
		}
	case []any:
		for i, item := range val {
			walkRefs(item, fmt.Sprintf("%s[%d]", path, i), fn)
		}
	}
}

// SubstituteRefs rewrites every reference inside v using lookup. References
// lookup cannot resolve are left in place and returned so the caller can
// decide whether that is an error (apply) or an expected unknown (plan).
func SubstituteRefs(v any, lookup func(Ref) (any, bool)) (any, []Ref) {
	var unresolved []Ref
	out := substitute(v, lookup, &unresolved)
	return out, unresolved
}

func substitute(v any, lookup func(Ref) (any, bool), unresolved *[]Ref) any {
	switch val := v.(type) {
	case string:
		ref, ok := ParseRef(val)
		if !ok {
			return val
		}
		resolved, found := lookup(ref)
		if !found {
			*unresolved = append(*unresolved, ref)
			return val
		}
		return resolved
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = substitute(item, lookup, unresolved)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = substitute(item, lookup, unresolved)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substitute(item, lookup, unresolved)
		}
		return out
	default:
		return val
	}
}

// AttrByPath walks a dotted path through realized attributes.
func AttrByPath(attrs map[string]any, path string) (any, bool) {
	var cur any = attrs
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
