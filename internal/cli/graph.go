package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/eval"
)

var graphCmd = &cobra.Command{
	Use:   "graph [path]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  stratus graph | dot -Tpng > graph.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveWorkspace(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	cfg, err := eval.NewEvaluator(wd).LoadConfig(ctx, entryPoint, nil)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	resources := engine.ExpandResources(cfg.Resources)
	graph, err := engine.BuildGraph(resources)
	if err != nil {
		return wrapRunError(err)
	}

	fmt.Println("digraph stratus {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, addr := range graph.CreationOrder() {
		fmt.Printf("  %q;\n", addr)
	}
	fmt.Println()

	for _, addr := range graph.CreationOrder() {
		for _, dep := range graph.Dependencies(addr) {
			fmt.Printf("  %q -> %q;\n", addr, dep)
		}
	}

	fmt.Println("}")
	return nil
}
