package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct{}

func (fakeProvider) Capabilities(string) Capabilities { return nil }
func (fakeProvider) Create(context.Context, string, string, map[string]any) (map[string]any, string, error) {
	return map[string]any{}, "fake-1", nil
}
func (fakeProvider) Update(context.Context, string, string, map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}
func (fakeProvider) Destroy(context.Context, string, string) error { return nil }
func (fakeProvider) Read(context.Context, string, string) (map[string]any, bool, error) {
	return nil, false, nil
}

func TestRegistry_LoadProvider(t *testing.T) {
	RegisterFactory("fake", func() Provider { return fakeProvider{} })

	reg := NewRegistry()
	require.NoError(t, reg.LoadProvider("fake"))

	p, err := reg.Get("fake")
	require.NoError(t, err)
	assert.NotNil(t, p)

	// Loading again is a no-op.
	require.NoError(t, reg.LoadProvider("fake"))
	assert.Equal(t, []string{"fake"}, reg.Loaded())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	reg := NewRegistry()
	err := reg.LoadProvider("does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")

	_, err = reg.Get("does-not-exist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not loaded")
}

func TestRegistry_PutInjectsInstance(t *testing.T) {
	reg := NewRegistry()
	reg.Put("injected", fakeProvider{})

	p, err := reg.Get("injected")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestCapabilities_DefaultIsUpdatable(t *testing.T) {
	caps := Capabilities{"cidr": MutabilityImmutable}
	assert.Equal(t, MutabilityImmutable, caps["cidr"])
	// Absent attributes default to updatable in place.
	assert.Equal(t, MutabilityUpdatable, caps["name"])
}
