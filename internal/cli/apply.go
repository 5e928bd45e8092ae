package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratus-io/stratus/internal/eval"
	"github.com/stratus-io/stratus/internal/provider"
)

var (
	applyAutoApprove bool
	applyProperties  map[string]string
)

var applyCmd = &cobra.Command{
	Use:   "apply [path]",
	Short: "Apply a configuration",
	Long: `Builds or changes infrastructure according to the declared
configuration. Independent resources are applied in parallel; a failed
resource skips its dependents while unrelated branches run to completion.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().StringToStringVarP(&applyProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runApply(cmd *cobra.Command, args []string) error {
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

	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	fmt.Print("Loading configuration... ")
	cfg, err := eval.NewEvaluator(wd).LoadConfig(ctx, entryPoint, applyProperties)
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

	if !applyAutoApprove && !confirm("Do you want to perform these actions?") {
		fmt.Println("Apply cancelled.")
		return nil
	}

	fmt.Printf("\nApplying %d changes...\n", plan.Summary.Total())
	report := eng.ApplyWithCallback(ctx, plan, progressCallback)

	if err := runReportError(report); err != nil {
		return err
	}

	if len(plan.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for k, v := range plan.Outputs {
			fmt.Printf("  %s = %v\n", k, formatValue(v))
		}
	}
	return nil
}
