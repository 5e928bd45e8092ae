package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratus-io/stratus/internal/ir"
)

func testResource(resourceType, name string, attrs map[string]any, deps ...string) *ir.Resource {
	if attrs == nil {
		attrs = map[string]any{}
	}
	return &ir.Resource{
		Type:       resourceType,
		Name:       name,
		Provider:   "local",
		DependsOn:  deps,
		Attributes: attrs,
	}
}

func orderIndex(t *testing.T, order []string, addr string) int {
	t.Helper()
	for i, a := range order {
		if a == addr {
			return i
		}
	}
	t.Fatalf("address %s not in order %v", addr, order)
	return -1
}

func TestBuildGraph_CreationOrder(t *testing.T) {
	resources := []*ir.Resource{
		testResource("compute.Instance", "vm", map[string]any{
			"subnet": "ref://compute.Subnet/app/self_link",
		}),
		testResource("compute.Subnet", "app", map[string]any{
			"network": "ref://compute.Network/main/self_link",
		}),
		testResource("compute.Network", "main", nil),
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	order := graph.CreationOrder()
	require.Len(t, order, 3)
	assert.Less(t, orderIndex(t, order, "compute.Network.main"), orderIndex(t, order, "compute.Subnet.app"))
	assert.Less(t, orderIndex(t, order, "compute.Subnet.app"), orderIndex(t, order, "compute.Instance.vm"))
}

func TestBuildGraph_ExplicitDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		testResource("db.Instance", "primary", nil, "compute.Network.main"),
		testResource("compute.Network", "main", nil),
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"compute.Network.main"}, graph.Dependencies("db.Instance.primary"))
}

func TestBuildGraph_CycleReportsFullCycle(t *testing.T) {
	resources := []*ir.Resource{
		testResource("a.A", "x", nil, "b.B.y"),
		testResource("b.B", "y", nil, "c.C.z"),
		testResource("c.C", "z", nil, "a.A.x"),
	}

	_, err := BuildGraph(resources)
	require.Error(t, err)

	var cyclic *CyclicDependencyError
	require.ErrorAs(t, err, &cyclic)
	assert.True(t, IsConfigurationError(err))

	// Full cycle, first member repeated at the end.
	require.Len(t, cyclic.Cycle, 4)
	assert.Equal(t, cyclic.Cycle[0], cyclic.Cycle[len(cyclic.Cycle)-1])
	assert.ElementsMatch(t, []string{"a.A.x", "b.B.y", "c.C.z"}, cyclic.Cycle[:3])
}

func TestBuildGraph_DuplicateIdentity(t *testing.T) {
	resources := []*ir.Resource{
		testResource("compute.Network", "main", map[string]any{"cidr": "10.0.0.0/16"}),
		testResource("compute.Network", "main", map[string]any{"cidr": "10.1.0.0/16"}),
	}

	_, err := BuildGraph(resources)
	require.Error(t, err)

	var dup *DuplicateResourceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "compute.Network.main", dup.Addr)
	assert.True(t, IsConfigurationError(err))
}

func TestBuildGraph_DanglingDependsOn(t *testing.T) {
	resources := []*ir.Resource{
		testResource("compute.Instance", "vm", nil, "compute.Network.missing"),
	}

	_, err := BuildGraph(resources)
	require.Error(t, err)

	var unresolved *UnresolvedReferenceError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "compute.Instance.vm", unresolved.Consumer)
	assert.Equal(t, "compute.Network.missing", unresolved.Target)
}

func TestBuildGraph_ReadySets(t *testing.T) {
	// Diamond: b and c both depend on a, d depends on both.
	resources := []*ir.Resource{
		testResource("t.T", "a", nil),
		testResource("t.T", "b", nil, "t.T.a"),
		testResource("t.T", "c", nil, "t.T.a"),
		testResource("t.T", "d", nil, "t.T.b", "t.T.c"),
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	sets := graph.ReadySets()
	require.Len(t, sets, 3)
	assert.Equal(t, []string{"t.T.a"}, sets[0])
	assert.Equal(t, []string{"t.T.b", "t.T.c"}, sets[1])
	assert.Equal(t, []string{"t.T.d"}, sets[2])
}

func TestGraph_DestructionOrderIsReversed(t *testing.T) {
	resources := []*ir.Resource{
		testResource("t.T", "child", nil, "t.T.parent"),
		testResource("t.T", "parent", nil),
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)

	destruction := graph.DestructionOrder()
	assert.Less(t, orderIndex(t, destruction, "t.T.child"), orderIndex(t, destruction, "t.T.parent"))
}

func TestBuildGraph_OrderHint(t *testing.T) {
	resources := []*ir.Resource{
		testResource("t.T", "a", nil),
		testResource("t.T", "b", nil),
		testResource("t.T", "c", nil),
	}

	graph, err := BuildGraph(resources, WithOrderHint([]string{"t.T.c", "t.T.a"}))
	require.NoError(t, err)

	sets := graph.ReadySets()
	require.Len(t, sets, 1)
	// Hinted addresses first, in hint order; the rest after, by address.
	assert.Equal(t, []string{"t.T.c", "t.T.a", "t.T.b"}, sets[0])
}

func TestBuildGraph_OrderHintNeverOverridesEdges(t *testing.T) {
	resources := []*ir.Resource{
		testResource("t.T", "child", nil, "t.T.parent"),
		testResource("t.T", "parent", nil),
	}

	graph, err := BuildGraph(resources, WithOrderHint([]string{"t.T.child", "t.T.parent"}))
	require.NoError(t, err)

	order := graph.CreationOrder()
	assert.Less(t, orderIndex(t, order, "t.T.parent"), orderIndex(t, order, "t.T.child"))
}

func TestBuildGraphFromState_DropsMissingDependencies(t *testing.T) {
	records := []*ir.StateRecord{
		{Type: "t.T", Name: "a", Dependencies: []string{"t.T.gone"}},
		{Type: "t.T", Name: "b", Dependencies: []string{"t.T.a"}},
	}

	graph, err := BuildGraphFromState(records)
	require.NoError(t, err)
	assert.Empty(t, graph.Dependencies("t.T.a"))
	assert.Equal(t, []string{"t.T.a"}, graph.Dependencies("t.T.b"))
}

func TestGraph_TransitiveDependents(t *testing.T) {
	resources := []*ir.Resource{
		testResource("t.T", "root", nil),
		testResource("t.T", "mid", nil, "t.T.root"),
		testResource("t.T", "leaf", nil, "t.T.mid"),
		testResource("t.T", "other", nil),
	}

	graph, err := BuildGraph(resources)
	require.NoError(t, err)
	assert.Equal(t, []string{"t.T.leaf", "t.T.mid"}, graph.TransitiveDependents("t.T.root"))
	assert.Empty(t, graph.TransitiveDependents("t.T.other"))
}
