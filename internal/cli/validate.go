package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/eval"
)

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Check that the configuration is internally consistent",
	Long: `Evaluates the configuration and verifies resource identities are
unique, every reference resolves to a declared resource, and the dependency
graph has no cycles. No providers are called and no state is read.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
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
	if _, err := engine.BuildGraph(resources); err != nil {
		return wrapRunError(err)
	}

	fmt.Printf("Configuration is valid: %d resource(s).\n", len(resources))
	return nil
}
