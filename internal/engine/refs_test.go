package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratus-io/stratus/internal/ir"
)

func TestParseRef(t *testing.T) {
	ref, ok := ParseRef("ref://compute.Network/main/self_link")
	require.True(t, ok)
	assert.Equal(t, "compute.Network", ref.Type)
	assert.Equal(t, "main", ref.Name)
	assert.Equal(t, "self_link", ref.AttrPath)
	assert.Equal(t, "compute.Network.main", ref.Addr())

	// Nested attribute path.
	ref, ok = ParseRef("ref://db.Instance/primary/endpoint.host")
	require.True(t, ok)
	assert.Equal(t, "endpoint.host", ref.AttrPath)

	for _, s := range []string{
		"not a ref",
		"ref://",
		"ref://only-type",
		"ref://type/name",
		"ref://type//attr",
		"ref:///name/attr",
	} {
		_, ok := ParseRef(s)
		assert.False(t, ok, "expected %q to be rejected", s)
	}
}

func TestExtractRefs_Nested(t *testing.T) {
	attrs := map[string]any{
		"network": "ref://compute.Network/main/self_link",
		"tags":    []any{"static", "ref://iam.Role/app/arn"},
		"config": map[string]any{
			"subnet": "ref://compute.Subnet/app/id",
		},
		"plain": "just a string",
	}

	refs := ExtractRefs(attrs)
	require.Len(t, refs, 3)

	addrs := make([]string, len(refs))
	for i, r := range refs {
		addrs[i] = r.Addr()
	}
	assert.ElementsMatch(t, []string{"compute.Network.main", "iam.Role.app", "compute.Subnet.app"}, addrs)
}

func TestResolveReferences_Edges(t *testing.T) {
	resources := []*ir.Resource{
		testResource("compute.Network", "main", nil),
		testResource("compute.Subnet", "app", map[string]any{
			"network": "ref://compute.Network/main/self_link",
		}),
	}

	edges, err := ResolveReferences(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"compute.Network.main"}, edges["compute.Subnet.app"])
}

func TestResolveReferences_UnknownTarget(t *testing.T) {
	resources := []*ir.Resource{
		testResource("compute.Subnet", "app", map[string]any{
			"network": "ref://compute.Network/missing/self_link",
		}),
	}

	_, err := ResolveReferences(resources)
	require.Error(t, err)

	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "compute.Subnet.app", unresolved.Consumer)
	assert.Equal(t, "compute.Network.missing", unresolved.Target)
	assert.Equal(t, "network", unresolved.AttrPath)
	assert.True(t, IsConfigurationError(err))
}

func TestSubstituteRefs(t *testing.T) {
	attrs := map[string]any{
		"network": "ref://compute.Network/main/self_link",
		"unknown": "ref://compute.Subnet/pending/id",
		"nested": map[string]any{
			"link": "ref://compute.Network/main/self_link",
		},
		"plain": "value",
	}

	lookup := func(ref Ref) (any, bool) {
		if ref.Addr() == "compute.Network.main" {
			return "projects/x/networks/main", true
		}
		return nil, false
	}

	out, unresolved := SubstituteRefs(attrs, lookup)
	resolved := out.(map[string]any)

	assert.Equal(t, "projects/x/networks/main", resolved["network"])
	assert.Equal(t, "projects/x/networks/main", resolved["nested"].(map[string]any)["link"])
	assert.Equal(t, "value", resolved["plain"])

	// The unknown reference stays symbolic and is reported.
	assert.Equal(t, "ref://compute.Subnet/pending/id", resolved["unknown"])
	require.Len(t, unresolved, 1)
	assert.Equal(t, "compute.Subnet.pending", unresolved[0].Addr())
}

func TestAttrByPath(t *testing.T) {
	attrs := map[string]any{
		"self_link": "link",
		"endpoint": map[string]any{
			"host": "db.example.com",
			"port": 5432,
		},
	}

	v, ok := AttrByPath(attrs, "self_link")
	require.True(t, ok)
	assert.Equal(t, "link", v)

	v, ok = AttrByPath(attrs, "endpoint.host")
	require.True(t, ok)
	assert.Equal(t, "db.example.com", v)

	_, ok = AttrByPath(attrs, "endpoint.missing")
	assert.False(t, ok)

	_, ok = AttrByPath(attrs, "self_link.too.deep")
	assert.False(t, ok)
}
