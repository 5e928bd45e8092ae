package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/logging"
	"github.com/stratus-io/stratus/internal/provider"
	"github.com/stratus-io/stratus/internal/state"
)

// DefaultParallelism bounds concurrent provider calls within a ready set.
// Kept small to respect provider API rate limits.
const DefaultParallelism = 10

// Engine orchestrates the lifecycle of resources: diffing declared
// configuration against stored state and applying the resulting plan.
type Engine struct {
	registry *provider.Registry
	store    state.Store

	// Parallelism bounds concurrent provider calls. Zero means
	// DefaultParallelism.
	Parallelism int

	// OrderHint biases ordering among resources with equal readiness.
	OrderHint []string
}

func New(registry *provider.Registry, store state.Store) *Engine {
	return &Engine{
		registry: registry,
		store:    store,
	}
}

// Plan generates an execution plan by comparing the declared configuration
// with stored state. Configuration errors (duplicate identity, unresolved
// reference, dependency cycle) abort planning before any provider call.
func (e *Engine) Plan(ctx context.Context, cfg *ir.Config) (*ir.Plan, error) {
	resources := ExpandResources(cfg.Resources)
	logging.Debug("creating plan", "resources", len(resources))

	for _, res := range resources {
		if err := e.registry.LoadProvider(res.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", res.Provider, err)
		}
	}

	graph, err := BuildGraph(resources, WithOrderHint(e.OrderHint))
	if err != nil {
		return nil, err
	}

	records, corrupt, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list state: %w", err)
	}

	stateByAddr := make(map[string]*ir.StateRecord, len(records))
	for _, rec := range records {
		stateByAddr[rec.Addr()] = rec
	}
	byAddr := make(map[string]*ir.Resource, len(resources))
	for _, res := range resources {
		byAddr[res.Addr()] = res
	}

	// A corrupt record means unknown real state: block that resource and
	// everything that depends on it, but let independent branches proceed.
	blocked := make(map[string]string)
	for _, c := range corrupt {
		addr := c.Addr
		if addr == "" {
			addr = c.Path
		}
		blocked[addr] = c.Error()
	}
	for addr := range blocked {
		for _, dependent := range graph.TransitiveDependents(addr) {
			if _, already := blocked[dependent]; !already {
				blocked[dependent] = fmt.Sprintf("depends on %s, whose state record is corrupt", addr)
			}
		}
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			ConfigHash: configHash(resources),
		},
		Summary: &ir.PlanSummary{},
		Outputs: cfg.Outputs,
		Blocked: blocked,
	}

	// Planned actions so far, consulted when deciding whether a producer's
	// outputs are already known. Filled in creation order, so every
	// producer is decided before its consumers.
	actions := make(map[string]ir.Action, len(resources))

	for _, addr := range graph.CreationOrder() {
		if _, isBlocked := blocked[addr]; isBlocked {
			continue
		}
		res := byAddr[addr]
		prior := stateByAddr[addr]

		// Substitute references whose producers already have known
		// realized attributes. References into resources being created
		// or replaced this run stay symbolic; their final values are
		// substituted at apply time, after the producer realizes.
		lookup := func(ref Ref) (any, bool) {
			switch actions[ref.Addr()] {
			case ir.ActionCreate, ir.ActionReplace:
				return nil, false
			}
			rec := stateByAddr[ref.Addr()]
			if rec == nil {
				return nil, false
			}
			return AttrByPath(rec.Attributes, ref.AttrPath)
		}
		desired, unknown := SubstituteRefs(res.Attributes, lookup)
		desiredAttrs, _ := desired.(map[string]any)
		if desiredAttrs == nil {
			desiredAttrs = map[string]any{}
		}

		item := &ir.PlanItem{
			Addr:      addr,
			Desired:   res,
			Prior:     prior,
			DependsOn: append([]string(nil), graph.Dependencies(addr)...),
		}

		switch {
		case prior == nil:
			item.Action = ir.ActionCreate
			item.Diff = buildCreateDiff(desiredAttrs)
		default:
			action, diff, err := e.diffAgainstPrior(res, prior, desiredAttrs, len(unknown) > 0)
			if err != nil {
				return nil, err
			}
			item.Action = action
			item.Diff = diff
		}

		actions[addr] = item.Action
		plan.Items = append(plan.Items, item)
		countAction(plan.Summary, item.Action)
	}

	// Resources present in state but no longer declared are destroyed, in
	// reverse dependency order relative to creation (the scheduler walks
	// destroy ready sets backwards).
	var destroyAddrs []string
	for addr := range stateByAddr {
		if _, declared := byAddr[addr]; declared {
			continue
		}
		if _, isBlocked := blocked[addr]; isBlocked {
			continue
		}
		destroyAddrs = append(destroyAddrs, addr)
	}
	sort.Strings(destroyAddrs)
	for _, addr := range destroyAddrs {
		rec := stateByAddr[addr]
		if err := e.registry.LoadProvider(rec.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", rec.Provider, err)
		}
		plan.Items = append(plan.Items, &ir.PlanItem{
			Addr:      addr,
			Action:    ir.ActionDestroy,
			Prior:     rec,
			DependsOn: append([]string(nil), rec.Dependencies...),
			Diff:      buildDestroyDiff(rec.Attributes),
		})
		plan.Summary.Destroy++
	}

	return plan, nil
}

// PlanDestroy builds a plan that destroys every resource in state, in
// reverse dependency order. Corrupt records block themselves and every
// record that depends on them.
func (e *Engine) PlanDestroy(ctx context.Context) (*ir.Plan, error) {
	records, corrupt, err := e.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list state: %w", err)
	}

	graph, err := BuildGraphFromState(records, WithOrderHint(e.OrderHint))
	if err != nil {
		return nil, err
	}

	blocked := make(map[string]string)
	for _, c := range corrupt {
		addr := c.Addr
		if addr == "" {
			addr = c.Path
		}
		blocked[addr] = c.Error()
	}
	for addr := range blocked {
		for _, dependent := range graph.TransitiveDependents(addr) {
			if _, already := blocked[dependent]; !already {
				blocked[dependent] = fmt.Sprintf("depends on %s, whose state record is corrupt", addr)
			}
		}
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Summary: &ir.PlanSummary{},
		Blocked: blocked,
	}

	for _, rec := range records {
		addr := rec.Addr()
		if _, isBlocked := blocked[addr]; isBlocked {
			continue
		}
		if err := e.registry.LoadProvider(rec.Provider); err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", rec.Provider, err)
		}
		plan.Items = append(plan.Items, &ir.PlanItem{
			Addr:      addr,
			Action:    ir.ActionDestroy,
			Prior:     rec,
			DependsOn: append([]string(nil), rec.Dependencies...),
			Diff:      buildDestroyDiff(rec.Attributes),
		})
		plan.Summary.Destroy++
	}

	sort.Slice(plan.Items, func(i, j int) bool { return plan.Items[i].Addr < plan.Items[j].Addr })
	return plan, nil
}

// diffAgainstPrior classifies a declared resource that has a state record:
// noop when the declared attribute hash matches the last-applied hash,
// update when every changed attribute is updatable in place, replace when
// any changed attribute is immutable.
func (e *Engine) diffAgainstPrior(res *ir.Resource, prior *ir.StateRecord, desired map[string]any, hasUnknown bool) (ir.Action, map[string]*ir.AttributeDiff, error) {
	if !hasUnknown && HashAttributes(desired) == prior.AttributesHash {
		return ir.ActionNoOp, nil, nil
	}

	changed := changedAttributes(prior.Attributes, desired)
	if res.Lifecycle != nil && len(res.Lifecycle.IgnoreChanges) > 0 {
		ignore := make(map[string]bool, len(res.Lifecycle.IgnoreChanges))
		for _, attr := range res.Lifecycle.IgnoreChanges {
			ignore[attr] = true
		}
		filtered := changed[:0]
		for _, attr := range changed {
			if !ignore[attr] {
				filtered = append(filtered, attr)
			}
		}
		if len(filtered) == 0 {
			return ir.ActionNoOp, nil, nil
		}
		changed = filtered
	}
	if len(changed) == 0 {
		// Hash differs but no per-attribute change survived (e.g. an
		// attribute was removed from the declaration). Update in place.
		return ir.ActionUpdate, map[string]*ir.AttributeDiff{}, nil
	}

	prov, err := e.registry.Get(res.Provider)
	if err != nil {
		return "", nil, err
	}
	caps := prov.Capabilities(res.Type)

	action := ir.ActionUpdate
	diff := make(map[string]*ir.AttributeDiff, len(changed))
	for _, attr := range changed {
		d := &ir.AttributeDiff{
			Before: prior.Attributes[attr],
			After:  desired[attr],
			Action: "update",
		}
		if _, had := prior.Attributes[attr]; !had {
			d.Action = "create"
		}
		if caps[attr] == provider.MutabilityImmutable {
			d.ForcesReplacement = true
			action = ir.ActionReplace
		}
		diff[attr] = d
	}

	if action == ir.ActionReplace && res.Lifecycle != nil && res.Lifecycle.PreventDestroy {
		return "", nil, fmt.Errorf("resource %s has preventDestroy set but an immutable attribute changed, requiring replacement", res.Addr())
	}

	return action, diff, nil
}

// changedAttributes returns the top-level keys of desired whose canonical
// value differs from the prior realized attributes. Keys holding a still
// symbolic reference always count as changed.
func changedAttributes(prior, desired map[string]any) []string {
	var changed []string
	for _, key := range sortedKeys(desired) {
		before, had := prior[key]
		if !had || canonicalString(before) != canonicalString(desired[key]) {
			changed = append(changed, key)
		}
	}
	return changed
}

func canonicalString(v any) string {
	return HashAttributes(map[string]any{"v": v})
}

func buildCreateDiff(attrs map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &ir.AttributeDiff{After: v, Action: "create"}
	}
	return diff
}

func buildDestroyDiff(attrs map[string]any) map[string]*ir.AttributeDiff {
	diff := make(map[string]*ir.AttributeDiff, len(attrs))
	for k, v := range attrs {
		diff[k] = &ir.AttributeDiff{Before: v, Action: "delete"}
	}
	return diff
}

func countAction(s *ir.PlanSummary, action ir.Action) {
	switch action {
	case ir.ActionCreate:
		s.Create++
	case ir.ActionUpdate:
		s.Update++
	case ir.ActionReplace:
		s.Replace++
	case ir.ActionDestroy:
		s.Destroy++
	case ir.ActionNoOp:
		s.NoOp++
	}
}

// configHash fingerprints the whole declared configuration, for plan
// metadata.
func configHash(resources []*ir.Resource) string {
	m := make(map[string]any, len(resources))
	for _, res := range resources {
		m[res.Addr()] = res.Attributes
	}
	return HashAttributes(m)
}
