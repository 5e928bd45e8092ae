package engine

import (
	"sort"

	"github.com/stratus-io/stratus/internal/ir"
)

// Graph is the directed dependency graph over resources. Nodes are indexed
// by address; edges point from consumer to producer. Resources are kept in
// an address-keyed arena, never as live object-to-object pointers, so cycle
// detection stays a pure traversal.
type Graph struct {
	nodes     map[string]*graphNode
	order     []string   // topological creation order
	readySets [][]string // order grouped into dependency levels
	hint      map[string]int
}

type graphNode struct {
	addr       string
	deps       []string // producers this node depends on
	dependents []string // consumers that depend on this node
}

// GraphOption adjusts graph construction.
type GraphOption func(*Graph)

// WithOrderHint biases the ordering of resources inside a ready set:
// hinted addresses sort by their position in the hint, un-hinted ones
// after, by address. Dependency edges always win over the hint.
func WithOrderHint(addrs []string) GraphOption {
	return func(g *Graph) {
		g.hint = make(map[string]int, len(addrs))
		for i, a := range addrs {
			g.hint[a] = i
		}
	}
}

// BuildGraph constructs the dependency graph for a configuration set from
// explicit dependsOn declarations plus the implicit edges carried by
// attribute references. It fails with a configuration error on duplicate
// identities, dangling dependencies, or cycles.
func BuildGraph(resources []*ir.Resource, opts ...GraphOption) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode, len(resources))}
	for _, opt := range opts {
		opt(g)
	}

	for _, res := range resources {
		addr := res.Addr()
		if _, dup := g.nodes[addr]; dup {
			return nil, &DuplicateResourceError{Addr: addr}
		}
		g.nodes[addr] = &graphNode{addr: addr}
	}

	refEdges, err := ResolveReferences(resources)
	if err != nil {
		return nil, err
	}

	for _, res := range resources {
		addr := res.Addr()
		for _, dep := range res.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, &UnresolvedReferenceError{
					Consumer: addr,
					AttrPath: "dependsOn",
					Target:   dep,
				}
			}
			g.addEdge(addr, dep)
		}
		for _, dep := range refEdges[addr] {
			g.addEdge(addr, dep)
		}
	}

	if err := g.finish(); err != nil {
		return nil, err
	}
	return g, nil
}

// BuildGraphFromState constructs a graph over state records using their
// recorded dependencies, for ordering destroys. Records may reference
// dependencies that are gone from state; those edges are dropped.
func BuildGraphFromState(records []*ir.StateRecord, opts ...GraphOption) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode, len(records))}
	for _, opt := range opts {
		opt(g)
	}

	for _, rec := range records {
		g.nodes[rec.Addr()] = &graphNode{addr: rec.Addr()}
	}
	for _, rec := range records {
		for _, dep := range rec.Dependencies {
			if _, ok := g.nodes[dep]; ok {
				g.addEdge(rec.Addr(), dep)
			}
		}
	}

	if err := g.finish(); err != nil {
		return nil, err
	}
	return g, nil
}

// newGraph builds a graph from pre-resolved edges. Dependencies pointing
// outside the node set are dropped. Used by the scheduler to order the
// items of one apply phase.
func newGraph(addrs []string, deps map[string][]string) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode, len(addrs))}
	for _, addr := range addrs {
		g.nodes[addr] = &graphNode{addr: addr}
	}
	for _, addr := range addrs {
		for _, dep := range deps[addr] {
			if _, ok := g.nodes[dep]; ok {
				g.addEdge(addr, dep)
			}
		}
	}
	if err := g.finish(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) addEdge(consumer, producer string) {
	if consumer == producer {
		return
	}
	node := g.nodes[consumer]
	for _, existing := range node.deps {
		if existing == producer {
			return
		}
	}
	node.deps = append(node.deps, producer)
	g.nodes[producer].dependents = append(g.nodes[producer].dependents, consumer)
}

func (g *Graph) finish() error {
	if cycle := g.findCycle(); cycle != nil {
		return &CyclicDependencyError{Cycle: cycle}
	}
	g.computeReadySets()
	return nil
}

// findCycle runs a depth-first traversal with a recursion-stack marker.
// On a back-edge it returns the full cycle as an ordered address list,
// first member repeated at the end.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // done
	)
	color := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(addr string) bool
	visit = func(addr string) bool {
		color[addr] = gray
		stack = append(stack, addr)
		for _, dep := range g.nodes[addr].deps {
			switch color[dep] {
			case gray:
				start := 0
				for i, a := range stack {
					if a == dep {
						start = i
						break
					}
				}
				cycle = append(append(cycle, stack[start:]...), dep)
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[addr] = black
		return false
	}

	for _, addr := range g.sortedAddrs() {
		if color[addr] == white && visit(addr) {
			return cycle
		}
	}
	return nil
}

// computeReadySets runs Kahn's algorithm, grouping nodes whose producers
// are all satisfied into successive ready sets. Within a set, ordering is
// stable by address (or by the apply-order hint) so identical input yields
// an identical plan.
func (g *Graph) computeReadySets() {
	remaining := make(map[string]int, len(g.nodes))
	for addr, node := range g.nodes {
		remaining[addr] = len(node.deps)
	}

	var ready []string
	for _, addr := range g.sortedAddrs() {
		if remaining[addr] == 0 {
			ready = append(ready, addr)
		}
	}

	g.order = g.order[:0]
	g.readySets = g.readySets[:0]
	for len(ready) > 0 {
		g.sortByHint(ready)
		set := append([]string(nil), ready...)
		g.readySets = append(g.readySets, set)
		g.order = append(g.order, set...)

		var next []string
		for _, addr := range set {
			for _, dependent := range g.nodes[addr].dependents {
				remaining[dependent]--
				if remaining[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		ready = next
	}
}

// CreationOrder returns addresses in dependency-respecting creation order.
func (g *Graph) CreationOrder() []string {
	return g.order
}

// DestructionOrder returns addresses in reverse dependency order, safe for
// deletion: dependents before their dependencies.
func (g *Graph) DestructionOrder() []string {
	rev := make([]string, len(g.order))
	for i, addr := range g.order {
		rev[len(g.order)-1-i] = addr
	}
	return rev
}

// ReadySets returns the topological order grouped into sets whose members
// have no unresolved predecessors, so the scheduler can parallelize within
// a set.
func (g *Graph) ReadySets() [][]string {
	return g.readySets
}

// ReverseReadySets returns the ready sets in reverse order, for destroys.
func (g *Graph) ReverseReadySets() [][]string {
	rev := make([][]string, len(g.readySets))
	for i, set := range g.readySets {
		rev[len(g.readySets)-1-i] = set
	}
	return rev
}

// Dependencies returns the direct producers of addr.
func (g *Graph) Dependencies(addr string) []string {
	if node, ok := g.nodes[addr]; ok {
		return node.deps
	}
	return nil
}

// Dependents returns the direct consumers of addr.
func (g *Graph) Dependents(addr string) []string {
	if node, ok := g.nodes[addr]; ok {
		return node.dependents
	}
	return nil
}

// TransitiveDependents returns every address that depends on addr,
// directly or transitively, sorted.
func (g *Graph) TransitiveDependents(addr string) []string {
	seen := make(map[string]bool)
	var walk func(a string)
	walk = func(a string) {
		node, ok := g.nodes[a]
		if !ok {
			return
		}
		for _, dep := range node.dependents {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(addr)

	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func (g *Graph) sortedAddrs() []string {
	addrs := make([]string, 0, len(g.nodes))
	for addr := range g.nodes {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	return addrs
}

func (g *Graph) sortByHint(addrs []string) {
	if g.hint == nil {
		sort.Strings(addrs)
		return
	}
	sort.Slice(addrs, func(i, j int) bool {
		hi, oki := g.hint[addrs[i]]
		hj, okj := g.hint[addrs[j]]
		switch {
		case oki && okj:
			return hi < hj
		case oki:
			return true
		case okj:
			return false
		default:
			return addrs[i] < addrs[j]
		}
	})
}
