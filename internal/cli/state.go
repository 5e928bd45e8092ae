package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage Stratus state",
	Long:  `Commands for inspecting and modifying stored state records.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show the state record of a single resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateMvCmd = &cobra.Command{
	Use:   "mv <source> <destination>",
	Short: "Move a resource to a new address",
	Args:  cobra.ExactArgs(2),
	RunE:  runStateMv,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Remove a resource from state (does not destroy)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateMvCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveWorkspace(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}

	records, corrupt, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list state: %w", err)
	}

	if len(records) == 0 && len(corrupt) == 0 {
		fmt.Println("No resources in state.")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("  %s (provider: %s, id: %s)\n", rec.Addr(), rec.Provider, rec.ID)
	}
	for _, c := range corrupt {
		fmt.Printf("  \033[31m%s CORRUPT: %v\033[0m\n", c.Addr, c.Err)
	}
	fmt.Printf("\nTotal: %d resource(s)\n", len(records)+len(corrupt))
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveWorkspace(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}

	rec, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("resource %s not found in state", args[0])
	}

	fmt.Printf("# %s\n", rec.Addr())
	fmt.Printf("  provider = %s\n", rec.Provider)
	fmt.Printf("  id       = %s\n", rec.ID)

	if len(rec.Attributes) > 0 {
		fmt.Println("\n  Attributes:")
		keys := make([]string, 0, len(rec.Attributes))
		for k := range rec.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    %s = %v\n", k, formatValue(rec.Attributes[k]))
		}
	}

	if len(rec.Dependencies) > 0 {
		fmt.Printf("\n  dependencies = %s\n", strings.Join(rec.Dependencies, ", "))
	}
	fmt.Printf("\n  attributes_hash = %s\n", rec.AttributesHash)
	return nil
}

func runStateMv(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveWorkspace(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}

	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	src, dst := args[0], args[1]
	rec, err := store.Get(ctx, src)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("resource %s not found in state", src)
	}

	// The name is everything after the last dot; the type itself may be
	// dotted (e.g. compute.Network).
	cut := strings.LastIndex(dst, ".")
	if cut <= 0 || cut == len(dst)-1 {
		return fmt.Errorf("invalid destination address %q, expected format type.name", dst)
	}
	rec.Type = dst[:cut]
	rec.Name = dst[cut+1:]

	if err := store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := store.Delete(ctx, src); err != nil {
		return fmt.Errorf("failed to remove old record %s: %w", src, err)
	}

	fmt.Printf("Moved %s to %s\n", src, dst)
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveWorkspace(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}

	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	rec, err := store.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("resource %s not found in state", args[0])
	}

	if err := store.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to remove %s: %w", args[0], err)
	}

	fmt.Printf("Removed %s from state (resource was NOT destroyed)\n", args[0])
	return nil
}
