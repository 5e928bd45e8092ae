package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratus-io/stratus/internal/eval"
	"github.com/stratus-io/stratus/internal/provider"
)

var planProperties map[string]string

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Show the changes required to reach the declared configuration",
	Long: `Compares the declared configuration with stored state and prints the
actions a subsequent apply would perform. Plans are calculated fresh each
run and never persisted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringToStringVarP(&planProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	wd, entryPoint, err := resolveWorkspace(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}
	eng, err := newEngine(provider.NewRegistry(), store)
	if err != nil {
		return err
	}

	fmt.Print("Loading configuration... ")
	cfg, err := eval.NewEvaluator(wd).LoadConfig(ctx, entryPoint, planProperties)
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Println("OK")

	fmt.Print("Calculating plan... ")
	plan, err := eng.Plan(ctx, cfg)
	if err != nil {
		fmt.Println("FAILED")
		return wrapRunError(err)
	}
	fmt.Println("OK")

	if plan.Summary.Total() == 0 && len(plan.Blocked) == 0 {
		fmt.Println("\nNo changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nStratus will perform the following actions:")
	renderPlanItems(plan)
	renderPlanSummary(plan)
	return nil
}
