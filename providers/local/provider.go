// Package local implements an in-process provider that realizes resources
// in memory. It backs tests and demos: resources get a provider id and a
// self_link attribute but touch nothing outside the process.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/stratus-io/stratus/internal/provider"
)

func init() {
	provider.RegisterFactory("local", func() provider.Provider { return New() })
}

// Option adjusts provider behavior, mainly for engine tests.
type Option func(*Provider)

// WithImmutable marks attributes of a resource type as requiring
// replacement when changed.
func WithImmutable(resourceType string, attrs ...string) Option {
	return func(p *Provider) {
		set := p.immutable[resourceType]
		if set == nil {
			set = make(map[string]bool)
			p.immutable[resourceType] = set
		}
		for _, a := range attrs {
			set[a] = true
		}
	}
}

// WithCreateFailure makes Create fail for the named resource.
func WithCreateFailure(name string, err error) Option {
	return func(p *Provider) {
		p.createFailures[name] = err
	}
}

// WithDestroyFailure makes Destroy fail for the named resource. The object
// is left in place, as a real provider would after a failed delete.
func WithDestroyFailure(name string, err error) Option {
	return func(p *Provider) {
		p.destroyFailures[name] = err
	}
}

type Provider struct {
	mu              sync.Mutex
	seq             int
	objects         map[string]map[string]any // id -> realized attributes
	names           map[string]string         // id -> resource name
	immutable       map[string]map[string]bool
	createFailures  map[string]error
	destroyFailures map[string]error
}

func New(opts ...Option) *Provider {
	p := &Provider{
		objects:         make(map[string]map[string]any),
		names:           make(map[string]string),
		immutable:       make(map[string]map[string]bool),
		createFailures:  make(map[string]error),
		destroyFailures: make(map[string]error),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Capabilities(resourceType string) provider.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()

	caps := make(provider.Capabilities)
	for attr := range p.immutable[resourceType] {
		caps[attr] = provider.MutabilityImmutable
	}
	return caps
}

func (p *Provider) Create(ctx context.Context, resourceType, name string, attrs map[string]any) (map[string]any, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.createFailures[name]; err != nil {
		return nil, "", err
	}

	p.seq++
	id := fmt.Sprintf("local-%s-%d", name, p.seq)

	realized := copyAttrs(attrs)
	realized["id"] = id
	realized["self_link"] = fmt.Sprintf("local://%s/%s/%s", resourceType, name, id)
	p.objects[id] = realized
	p.names[id] = name

	return copyAttrs(realized), id, nil
}

func (p *Provider) Update(ctx context.Context, resourceType, id string, attrs map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.objects[id]
	if !ok {
		return nil, fmt.Errorf("resource %s not found", id)
	}

	realized := copyAttrs(attrs)
	realized["id"] = id
	realized["self_link"] = existing["self_link"]
	p.objects[id] = realized

	return copyAttrs(realized), nil
}

func (p *Provider) Destroy(ctx context.Context, resourceType, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.objects[id]; !ok {
		return fmt.Errorf("resource %s not found", id)
	}
	if err := p.destroyFailures[p.names[id]]; err != nil {
		return err
	}
	delete(p.objects, id)
	delete(p.names, id)
	return nil
}

func (p *Provider) Read(ctx context.Context, resourceType, id string) (map[string]any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	attrs, ok := p.objects[id]
	if !ok {
		return nil, false, nil
	}
	return copyAttrs(attrs), true, nil
}

// Live reports whether an object with the given id currently exists.
func (p *Provider) Live(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.objects[id]
	return ok
}

func copyAttrs(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}
