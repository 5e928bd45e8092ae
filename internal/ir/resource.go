package ir

import "fmt"

// Resource represents a single declared resource record.
type Resource struct {
	Type       string         `pkl:"type" json:"type"` // e.g. "compute.Network"
	Name       string         `pkl:"name" json:"name"`
	Provider   string         `pkl:"provider" json:"provider"`
	Lifecycle  *Lifecycle     `pkl:"lifecycle" json:"lifecycle,omitempty"`
	DependsOn  []string       `pkl:"dependsOn" json:"dependsOn,omitempty"`
	Count      int            `pkl:"count" json:"count,omitempty"`
	ForEach    map[string]any `pkl:"forEach" json:"forEach,omitempty"`
	Attributes map[string]any `pkl:"attributes" json:"attributes"` // values or ref:// references
}

// Addr returns the resource identity as a "type.name" address.
// Identity is (type, name); the address form is the map key used
// throughout the engine and the state store.
func (r *Resource) Addr() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}

type Lifecycle struct {
	CreateBeforeDestroy bool     `pkl:"createBeforeDestroy" json:"createBeforeDestroy,omitempty"`
	PreventDestroy      bool     `pkl:"preventDestroy" json:"preventDestroy,omitempty"`
	IgnoreChanges       []string `pkl:"ignoreChanges" json:"ignoreChanges,omitempty"`
}
