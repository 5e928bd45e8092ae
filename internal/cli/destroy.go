package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratus-io/stratus/internal/provider"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [path]",
	Short: "Destroy all managed infrastructure",
	Long: `Destroys every resource tracked in state, in reverse dependency
order: dependents are removed before the resources they depend on.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveWorkspace(args)
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

	plan, err := eng.PlanDestroy(ctx)
	if err != nil {
		return wrapRunError(err)
	}

	if plan.Summary.Total() == 0 && len(plan.Blocked) == 0 {
		fmt.Println("No resources in state. Nothing to destroy.")
		return nil
	}

	fmt.Println("Stratus will destroy the following resources:")
	renderPlanItems(plan)
	renderPlanSummary(plan)

	if !destroyAutoApprove && !confirm("Do you really want to destroy all resources?") {
		fmt.Println("Destroy cancelled.")
		return nil
	}

	fmt.Printf("\nDestroying %d resources...\n", plan.Summary.Destroy)
	report := eng.ApplyWithCallback(ctx, plan, progressCallback)
	return runReportError(report)
}
