package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/logging"
)

// ApplyEvent represents a progress event during apply.
type ApplyEvent struct {
	Addr     string
	Action   ir.Action
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// Apply executes a plan: ready set by ready set, items within a set
// concurrently, bounded by the engine's parallelism limit. A consumer is
// never dispatched before every producer succeeded; when a producer fails,
// all transitive dependents are skipped while independent branches run to
// completion. Destroys run after creates and updates, in reverse dependency
// order. Cancelling ctx stops dispatching new items but lets in-flight
// provider calls finish.
func (e *Engine) Apply(ctx context.Context, plan *ir.Plan) *RunReport {
	return e.ApplyWithCallback(ctx, plan, nil)
}

// ApplyWithCallback executes a plan with progress event callbacks.
func (e *Engine) ApplyWithCallback(ctx context.Context, plan *ir.Plan, callback ApplyCallback) *RunReport {
	report := NewRunReport()
	run := &applyRun{engine: e, realized: make(map[string]map[string]any)}

	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	for addr, reason := range plan.Blocked {
		report.record(&ir.ApplyResult{
			Addr:           addr,
			Outcome:        ir.OutcomeSkipped,
			SkippedBecause: reason,
		})
		emit(ApplyEvent{Addr: addr, Status: "skipped"})
	}

	var forward, destroys []*ir.PlanItem
	for _, item := range plan.Items {
		switch item.Action {
		case ir.ActionNoOp:
			report.record(&ir.ApplyResult{
				Addr:    item.Addr,
				Action:  ir.ActionNoOp,
				Outcome: ir.OutcomeSuccess,
			})
		case ir.ActionDestroy:
			destroys = append(destroys, item)
		default:
			forward = append(forward, item)
		}
	}

	// Creates, updates and replaces walk the graph forwards; a consumer's
	// predecessors are its producers.
	forwardPreds := make(map[string][]string, len(forward))
	for _, item := range forward {
		forwardPreds[item.Addr] = item.DependsOn
	}
	e.runPhase(ctx, forward, forwardPreds, false, report, run, emit)

	// Destroys walk the graph backwards; a producer must outlive its
	// dependents, so within the destroy set the dependents become the
	// predecessors.
	destroySet := make(map[string]*ir.PlanItem, len(destroys))
	for _, item := range destroys {
		destroySet[item.Addr] = item
	}
	destroyPreds := make(map[string][]string, len(destroys))
	for _, item := range destroys {
		for _, dep := range item.DependsOn {
			if _, ok := destroySet[dep]; ok {
				destroyPreds[dep] = append(destroyPreds[dep], item.Addr)
			}
		}
	}
	e.runPhase(ctx, destroys, destroyPreds, true, report, run, emit)

	return report
}

// runPhase schedules one phase's items over their ready sets.
func (e *Engine) runPhase(ctx context.Context, items []*ir.PlanItem, preds map[string][]string, destroyPhase bool, report *RunReport, run *applyRun, emit ApplyCallback) {
	if len(items) == 0 {
		return
	}

	byAddr := make(map[string]*ir.PlanItem, len(items))
	addrs := make([]string, 0, len(items))
	for _, item := range items {
		byAddr[item.Addr] = item
		addrs = append(addrs, item.Addr)
	}

	inPhase := make(map[string][]string, len(addrs))
	for addr, ps := range preds {
		for _, p := range ps {
			if _, ok := byAddr[p]; ok {
				inPhase[addr] = append(inPhase[addr], p)
			}
		}
	}

	graph, err := newGraph(addrs, inPhase)
	if err != nil {
		// The phase is a subset of an already-validated acyclic graph.
		logging.Error("apply phase graph is invalid", "error", err)
		for _, item := range items {
			report.record(&ir.ApplyResult{
				Addr:           item.Addr,
				Action:         item.Action,
				Outcome:        ir.OutcomeSkipped,
				SkippedBecause: err.Error(),
			})
		}
		return
	}

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	sem := semaphore.NewWeighted(int64(parallelism))

	for _, set := range graph.ReadySets() {
		var wg sync.WaitGroup
		for _, addr := range set {
			item := byAddr[addr]

			if cause, ok := failedPredecessor(report, preds[addr]); ok {
				verb := "apply"
				if destroyPhase {
					verb = "destroy"
				}
				report.record(&ir.ApplyResult{
					Addr:           item.Addr,
					Action:         item.Action,
					Outcome:        ir.OutcomeSkipped,
					SkippedBecause: fmt.Sprintf("cannot %s because %s was not applied", verb, cause),
				})
				emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: "skipped"})
				continue
			}

			if ctx.Err() != nil {
				report.record(&ir.ApplyResult{
					Addr:           item.Addr,
					Action:         item.Action,
					Outcome:        ir.OutcomeSkipped,
					SkippedBecause: "run cancelled before dispatch",
				})
				emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: "skipped"})
				continue
			}

			wg.Add(1)
			go func(item *ir.PlanItem) {
				defer wg.Done()

				if err := sem.Acquire(ctx, 1); err != nil {
					report.record(&ir.ApplyResult{
						Addr:           item.Addr,
						Action:         item.Action,
						Outcome:        ir.OutcomeSkipped,
						SkippedBecause: "run cancelled before dispatch",
					})
					emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: "skipped"})
					return
				}
				defer sem.Release(1)

				start := time.Now()
				emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: "started"})

				if err := e.applyItem(ctx, item, run); err != nil {
					report.record(&ir.ApplyResult{
						Addr:     item.Addr,
						Action:   item.Action,
						Outcome:  ir.OutcomeFailed,
						Err:      err.Error(),
						Duration: time.Since(start),
					})
					emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: "failed", Duration: time.Since(start), Error: err})
					return
				}

				report.record(&ir.ApplyResult{
					Addr:     item.Addr,
					Action:   item.Action,
					Outcome:  ir.OutcomeSuccess,
					Duration: time.Since(start),
				})
				emit(ApplyEvent{Addr: item.Addr, Action: item.Action, Status: "completed", Duration: time.Since(start)})
			}(item)
		}
		wg.Wait()
	}
}

// failedPredecessor reports the first predecessor whose recorded outcome is
// not success. Predecessors without a recorded result (e.g. a dependency of
// a destroy that is staying declared) are considered satisfied.
func failedPredecessor(report *RunReport, preds []string) (string, bool) {
	for _, p := range preds {
		if outcome, ok := report.outcome(p); ok && outcome != ir.OutcomeSuccess {
			return p, true
		}
	}
	return "", false
}

// applyItem performs one resource's provider action and persists the state
// transition. In-flight work is shielded from run cancellation so a
// half-applied resource is never abandoned mid-call; the per-resource
// timeout still bounds it.
func (e *Engine) applyItem(ctx context.Context, item *ir.PlanItem, run *applyRun) error {
	logging.Debug("applying change", "address", item.Addr, "action", item.Action)

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
	defer cancel()

	policy := DefaultRetryPolicy()

	if item.Action == ir.ActionDestroy {
		prov, err := e.registry.Get(item.Prior.Provider)
		if err != nil {
			return err
		}
		err = RetryWithBackoff(opCtx, policy, func() error {
			return prov.Destroy(opCtx, item.Prior.Type, item.Prior.ID)
		}, IsTransientError)
		if err != nil {
			return fmt.Errorf("destroy failed for %s: %w", item.Addr, err)
		}
		return e.store.Delete(opCtx, item.Addr)
	}

	prov, err := e.registry.Get(item.Desired.Provider)
	if err != nil {
		return err
	}

	attrs, err := run.resolve(opCtx, item)
	if err != nil {
		return err
	}
	hash := HashAttributes(attrs)

	var realized map[string]any
	var id string

	switch item.Action {
	case ir.ActionCreate:
		realized, id, err = run.create(opCtx, prov, item, attrs, policy)
		if err != nil {
			return err
		}

	case ir.ActionUpdate:
		id = item.Prior.ID
		err = RetryWithBackoff(opCtx, policy, func() error {
			var updateErr error
			realized, updateErr = prov.Update(opCtx, item.Desired.Type, id, attrs)
			return updateErr
		}, IsTransientError)
		if err != nil {
			return fmt.Errorf("update failed for %s: %w", item.Addr, err)
		}

	case ir.ActionReplace:
		if item.Desired.Lifecycle != nil && item.Desired.Lifecycle.CreateBeforeDestroy {
			realized, id, err = run.create(opCtx, prov, item, attrs, policy)
			if err != nil {
				return err
			}
			err = RetryWithBackoff(opCtx, policy, func() error {
				return prov.Destroy(opCtx, item.Prior.Type, item.Prior.ID)
			}, IsTransientError)
			if err != nil {
				return fmt.Errorf("replace of %s created the new resource but failed to destroy the old one (%s): %w",
					item.Addr, item.Prior.ID, err)
			}
		} else {
			err = RetryWithBackoff(opCtx, policy, func() error {
				return prov.Destroy(opCtx, item.Prior.Type, item.Prior.ID)
			}, IsTransientError)
			if err != nil {
				return fmt.Errorf("replace failed destroying old %s: %w", item.Addr, err)
			}
			if err := e.store.Delete(opCtx, item.Addr); err != nil {
				return err
			}
			realized, id, err = run.create(opCtx, prov, item, attrs, policy)
			if err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("unexpected action %q for %s", item.Action, item.Addr)
	}

	rec := &ir.StateRecord{
		SchemaVersion:  ir.StateSchemaVersion,
		Type:           item.Desired.Type,
		Name:           item.Desired.Name,
		Provider:       item.Desired.Provider,
		ID:             id,
		Attributes:     realized,
		AttributesHash: hash,
		Dependencies:   item.DependsOn,
	}

	// Persist immediately, before any dependent runs, so a later failure
	// elsewhere never orphans this resource.
	if err := e.store.Put(opCtx, rec); err != nil {
		return fmt.Errorf("resource %s was applied but its state could not be persisted: %w", item.Addr, err)
	}

	run.setRealized(item.Addr, realized)
	return nil
}

// applyRun carries the per-run substitution cache: realized attributes of
// resources applied earlier in this run, keyed by address.
type applyRun struct {
	engine   *Engine
	mu       sync.Mutex
	realized map[string]map[string]any
}

func (r *applyRun) setRealized(addr string, attrs map[string]any) {
	r.mu.Lock()
	r.realized[addr] = attrs
	r.mu.Unlock()
}

// resolve substitutes every reference in the item's declared attributes
// from producers realized this run or from the state store. The scheduler
// guarantees producers completed first, so an unresolved reference here is
// an internal error, not a user one.
func (r *applyRun) resolve(ctx context.Context, item *ir.PlanItem) (map[string]any, error) {
	lookup := func(ref Ref) (any, bool) {
		r.mu.Lock()
		attrs, ok := r.realized[ref.Addr()]
		r.mu.Unlock()
		if !ok {
			rec, err := r.engine.store.Get(ctx, ref.Addr())
			if err != nil || rec == nil {
				return nil, false
			}
			attrs = rec.Attributes
		}
		return AttrByPath(attrs, ref.AttrPath)
	}

	resolved, unresolved := SubstituteRefs(item.Desired.Attributes, lookup)
	if len(unresolved) > 0 {
		return nil, fmt.Errorf("reference %s of %s is still unresolved after its producer completed",
			unresolved[0], item.Addr)
	}
	attrs, _ := resolved.(map[string]any)
	if attrs == nil {
		attrs = map[string]any{}
	}
	return attrs, nil
}

func (r *applyRun) create(ctx context.Context, prov providerCreator, item *ir.PlanItem, attrs map[string]any, policy *RetryPolicy) (map[string]any, string, error) {
	var realized map[string]any
	var id string
	err := RetryWithBackoff(ctx, policy, func() error {
		var createErr error
		realized, id, createErr = prov.Create(ctx, item.Desired.Type, item.Desired.Name, attrs)
		return createErr
	}, IsTransientError)
	if err != nil {
		return nil, "", fmt.Errorf("create failed for %s: %w", item.Addr, err)
	}
	return realized, id, nil
}

// providerCreator is the slice of the provider interface create needs.
type providerCreator interface {
	Create(ctx context.Context, resourceType, name string, attrs map[string]any) (map[string]any, string, error)
}
