package ir

// Config represents the top-level parsed configuration: the full set of
// resource records declared for a single run.
type Config struct {
	Resources []*Resource    `pkl:"resources"`
	Outputs   map[string]any `pkl:"outputs"`
}
