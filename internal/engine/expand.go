package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stratus-io/stratus/internal/ir"
)

// ExpandResources expands records with Count or ForEach into individual
// resources. Must run before graph construction so every node has a unique
// identity.
func ExpandResources(resources []*ir.Resource) []*ir.Resource {
	var expanded []*ir.Resource

	for _, res := range resources {
		switch {
		case res.Count > 0:
			for i := 0; i < res.Count; i++ {
				clone := cloneResource(res)
				clone.Name = fmt.Sprintf("%s[%d]", res.Name, i)
				clone.Attributes = substitutePlaceholders(clone.Attributes, map[string]string{
					"${count.index}": fmt.Sprintf("%d", i),
				}).(map[string]any)
				expanded = append(expanded, clone)
			}
		case len(res.ForEach) > 0:
			keys := make([]string, 0, len(res.ForEach))
			for k := range res.ForEach {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				clone := cloneResource(res)
				clone.Name = fmt.Sprintf("%s[%q]", res.Name, key)
				clone.Attributes = substitutePlaceholders(clone.Attributes, map[string]string{
					"${each.key}":   key,
					"${each.value}": fmt.Sprintf("%v", res.ForEach[key]),
				}).(map[string]any)
				expanded = append(expanded, clone)
			}
		default:
			expanded = append(expanded, res)
		}
	}

	return expanded
}

func cloneResource(res *ir.Resource) *ir.Resource {
	clone := &ir.Resource{
		Type:     res.Type,
		Name:     res.Name,
		Provider: res.Provider,
	}
	if res.Lifecycle != nil {
		clone.Lifecycle = &ir.Lifecycle{
			CreateBeforeDestroy: res.Lifecycle.CreateBeforeDestroy,
			PreventDestroy:      res.Lifecycle.PreventDestroy,
			IgnoreChanges:       append([]string{}, res.Lifecycle.IgnoreChanges...),
		}
	}
	clone.DependsOn = append([]string{}, res.DependsOn...)
	clone.Attributes = deepCopyValue(res.Attributes).(map[string]any)
	return clone
}

func substitutePlaceholders(v any, repl map[string]string) any {
	switch val := v.(type) {
	case string:
		out := val
		for placeholder, value := range repl {
			out = strings.ReplaceAll(out, placeholder, value)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = substitutePlaceholders(item, repl)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = substitutePlaceholders(item, repl)
		}
		return out
	default:
		return val
	}
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopyValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprintf("%v", k)] = deepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return val
	}
}
