package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/provider"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [path]",
	Short: "Update state to match real infrastructure",
	Long: `Reads the live attributes of every managed resource from its provider
and updates the state records to match, so the next plan reflects drift.
Resources that no longer exist are removed from state.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func runRefresh(cmd *cobra.Command, args []string) error {
	wd, _, err := resolveWorkspace(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := openStore(ctx, wd)
	if err != nil {
		return err
	}
	registry := provider.NewRegistry()

	if err := store.Lock(); err != nil {
		return err
	}
	defer store.Unlock()

	records, corrupt, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list state: %w", err)
	}
	for _, c := range corrupt {
		fmt.Printf("  \033[31m%s: SKIP (%v)\033[0m\n", c.Addr, c.Err)
	}
	if len(records) == 0 {
		fmt.Println("No resources to refresh.")
		return nil
	}

	fmt.Printf("Refreshing %d resource(s)...\n\n", len(records))

	drifted := 0
	deleted := 0
	for _, rec := range records {
		addr := rec.Addr()
		if err := registry.LoadProvider(rec.Provider); err != nil {
			fmt.Printf("  %s: SKIP (provider %s not available)\n", addr, rec.Provider)
			continue
		}
		prov, err := registry.Get(rec.Provider)
		if err != nil {
			return err
		}

		live, exists, err := prov.Read(ctx, rec.Type, rec.ID)
		if err != nil {
			fmt.Printf("  \033[31m%s: ERROR (%v)\033[0m\n", addr, err)
			continue
		}

		if !exists {
			fmt.Printf("  \033[31m%s: DELETED (no longer exists in provider)\033[0m\n", addr)
			if err := store.Delete(ctx, addr); err != nil {
				return fmt.Errorf("failed to remove %s from state: %w", addr, err)
			}
			deleted++
			continue
		}

		liveHash := engine.HashAttributes(live)
		if liveHash == engine.HashAttributes(rec.Attributes) {
			fmt.Printf("  %s: OK\n", addr)
			continue
		}

		fmt.Printf("  \033[33m%s: DRIFTED (state updated)\033[0m\n", addr)
		rec.Attributes = live
		rec.AttributesHash = liveHash
		if err := store.Put(ctx, rec); err != nil {
			return fmt.Errorf("failed to write refreshed state for %s: %w", addr, err)
		}
		drifted++
	}

	fmt.Printf("\nRefresh complete. %d drifted, %d deleted.\n", drifted, deleted)
	return nil
}
