package provider

import "context"

// Mutability describes whether an attribute can change in place or forces
// re-creation of the resource.
type Mutability int

const (
	MutabilityUpdatable Mutability = iota
	MutabilityImmutable
)

// Capabilities maps attribute names to their mutability for one resource
// type. Attributes absent from the map are treated as updatable in place.
type Capabilities map[string]Mutability

// Provider is the per-resource-type collaborator the engine dispatches
// through. Implementations own all provider-specific semantics; the engine
// treats attributes as opaque values.
type Provider interface {
	// Capabilities returns the mutability descriptor for a resource type.
	Capabilities(resourceType string) Capabilities

	// Create realizes a new resource and returns its realized attributes
	// (including provider-assigned fields) and provider identifier.
	Create(ctx context.Context, resourceType, name string, attrs map[string]any) (map[string]any, string, error)

	// Update mutates an existing resource in place and returns its new
	// realized attributes.
	Update(ctx context.Context, resourceType, id string, attrs map[string]any) (map[string]any, error)

	// Destroy deletes an existing resource.
	Destroy(ctx context.Context, resourceType, id string) error

	// Read fetches the current realized attributes of an existing
	// resource. exists is false when the resource is gone.
	Read(ctx context.Context, resourceType, id string) (attrs map[string]any, exists bool, err error)
}
