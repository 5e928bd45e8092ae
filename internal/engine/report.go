package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/stratus-io/stratus/internal/ir"
)

// RunReport aggregates the ApplyResults of one run. It lists every
// resource's outcome, including no-ops and skips, so an operator can
// reconcile real infrastructure against the report.
type RunReport struct {
	mu      sync.Mutex
	results map[string]*ir.ApplyResult
}

func NewRunReport() *RunReport {
	return &RunReport{results: make(map[string]*ir.ApplyResult)}
}

func (r *RunReport) record(res *ir.ApplyResult) {
	r.mu.Lock()
	r.results[res.Addr] = res
	r.mu.Unlock()
}

// outcome returns the recorded outcome for an address, if any.
func (r *RunReport) outcome(addr string) (ir.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[addr]
	if !ok {
		return "", false
	}
	return res.Outcome, true
}

// Results returns every result sorted by address.
func (r *RunReport) Results() []*ir.ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*ir.ApplyResult, 0, len(r.results))
	for _, res := range r.results {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Result returns the result for one address, or nil.
func (r *RunReport) Result(addr string) *ir.ApplyResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results[addr]
}

// Counts returns the number of results per outcome.
func (r *RunReport) Counts() (succeeded, failed, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.results {
		switch res.Outcome {
		case ir.OutcomeSuccess:
			succeeded++
		case ir.OutcomeFailed:
			failed++
		case ir.OutcomeSkipped:
			skipped++
		}
	}
	return
}

// Failed returns every failed result sorted by address.
func (r *RunReport) Failed() []*ir.ApplyResult {
	return r.filter(ir.OutcomeFailed)
}

// Skipped returns every skipped result sorted by address.
func (r *RunReport) Skipped() []*ir.ApplyResult {
	return r.filter(ir.OutcomeSkipped)
}

func (r *RunReport) filter(outcome ir.Outcome) []*ir.ApplyResult {
	var out []*ir.ApplyResult
	for _, res := range r.Results() {
		if res.Outcome == outcome {
			out = append(out, res)
		}
	}
	return out
}

// ExitCode maps the report to the run's exit status: 0 when every result
// succeeded, 1 when one or more failed. Configuration errors short-circuit
// before a report exists and map to 2 at the CLI layer.
func (r *RunReport) ExitCode() int {
	if _, failed, _ := r.Counts(); failed > 0 {
		return 1
	}
	return 0
}

// Render formats the report for the operator.
func (r *RunReport) Render() string {
	var b strings.Builder

	succeeded, failed, skipped := r.Counts()
	fmt.Fprintf(&b, "Run summary: %d succeeded, %d failed, %d skipped.\n", succeeded, failed, skipped)

	if failures := r.Failed(); len(failures) > 0 {
		b.WriteString("\nFailures:\n")
		for _, res := range failures {
			fmt.Fprintf(&b, "  %s (%s): %s\n", res.Addr, res.Action, res.Err)
		}
	}
	if skips := r.Skipped(); len(skips) > 0 {
		b.WriteString("\nSkipped (never attempted, infrastructure untouched):\n")
		for _, res := range skips {
			fmt.Fprintf(&b, "  %s: %s\n", res.Addr, res.SkippedBecause)
		}
	}
	return b.String()
}
