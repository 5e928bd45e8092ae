package ir

// Action classifies what the apply scheduler must do for one resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDestroy Action = "destroy"
	ActionNoOp    Action = "noop"
)

// Plan represents a calculated execution plan. Plans are produced fresh
// each run and never persisted; a rendered plan file is display-only.
type Plan struct {
	Metadata *PlanMetadata
	Items    []*PlanItem
	Summary  *PlanSummary
	Outputs  map[string]any

	// Blocked maps addresses excluded from this run to the reason,
	// e.g. a corrupt state record or a producer with one. Blocked
	// resources appear in the run report as skipped.
	Blocked map[string]string
}

type PlanMetadata struct {
	Timestamp  string
	ConfigHash string
}

// PlanItem is the unit of work for one resource.
type PlanItem struct {
	Addr      string
	Action    Action
	Desired   *Resource                 // nil for destroy
	Prior     *StateRecord              // nil for create
	DependsOn []string                  // addresses of direct producers
	Diff      map[string]*AttributeDiff // top-level attribute diff, display and mutability checks
}

type AttributeDiff struct {
	Before            any
	After             any
	ForcesReplacement bool
	Action            string // "create", "update", "delete"
}

type PlanSummary struct {
	Create  int
	Update  int
	Replace int
	Destroy int
	NoOp    int
}

// Total returns the number of items that require provider calls.
func (s *PlanSummary) Total() int {
	return s.Create + s.Update + s.Replace + s.Destroy
}
