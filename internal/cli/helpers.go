package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/stratus-io/stratus/internal/engine"
	"github.com/stratus-io/stratus/internal/ir"
	"github.com/stratus-io/stratus/internal/provider"
	"github.com/stratus-io/stratus/internal/state"
)

// ExitError carries a specific process exit code up to main. A run with
// failed resources exits 1; configuration errors exit 2.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// resolveWorkspace interprets an optional path argument: a directory selects
// the project, a file selects both the project and the entry point.
func resolveWorkspace(args []string) (wd, entryPoint string, err error) {
	wd, err = os.Getwd()
	if err != nil {
		return "", "", fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint = "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return "", "", fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}
	return wd, entryPoint, nil
}

// openStore creates the state store selected by the backend flags. The
// default dir backend keeps one JSON record per resource under
// .stratus/state/ in the project directory.
func openStore(ctx context.Context, wd string) (state.Store, error) {
	cfg := &state.BackendConfig{
		Type:   backendType,
		Config: make(map[string]string, len(backendConfig)+1),
	}
	for k, v := range backendConfig {
		cfg.Config[k] = v
	}
	if cfg.Type == "dir" && cfg.Config["dir"] == "" {
		cfg.Config["dir"] = filepath.Join(wd, ".stratus", "state")
	}
	return state.NewStore(ctx, cfg)
}

func newEngine(registry *provider.Registry, store state.Store) (*engine.Engine, error) {
	hints := orderHints
	if orderHintFile != "" {
		fromFile, err := readOrderHints(orderHintFile)
		if err != nil {
			return nil, err
		}
		hints = append(append([]string(nil), hints...), fromFile...)
	}

	eng := engine.New(registry, store)
	eng.Parallelism = parallelism
	eng.OrderHint = hints
	return eng, nil
}

// readOrderHints parses an apply-order hint file: one address per line,
// blank lines and #-comments ignored.
func readOrderHints(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read order hint file: %w", err)
	}
	var hints []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		hints = append(hints, line)
	}
	return hints, nil
}

// wrapRunError maps engine errors onto process exit codes.
func wrapRunError(err error) error {
	if err == nil {
		return nil
	}
	if engine.IsConfigurationError(err) {
		return &ExitError{Code: 2, Err: err}
	}
	return err
}

// renderPlanItems prints the detailed change list for a plan.
func renderPlanItems(plan *ir.Plan) {
	for _, item := range plan.Items {
		if item.Action == ir.ActionNoOp {
			continue
		}

		symbol, color := "~", "\033[33m"
		switch item.Action {
		case ir.ActionCreate:
			symbol, color = "+", "\033[32m"
		case ir.ActionDestroy:
			symbol, color = "-", "\033[31m"
		case ir.ActionReplace:
			symbol = "-/+"
		}

		fmt.Printf("\n%s  # %s will be %sd\033[0m\n", color, item.Addr, item.Action)
		fmt.Printf("%s  %s {\033[0m\n", color, symbol)
		renderAttributeDiff(item.Diff)
		fmt.Printf("%s  }\033[0m\n", color)
	}

	if len(plan.Blocked) > 0 {
		fmt.Println("\nBlocked (state record corrupt or depends on one):")
		addrs := make([]string, 0, len(plan.Blocked))
		for addr := range plan.Blocked {
			addrs = append(addrs, addr)
		}
		sort.Strings(addrs)
		for _, addr := range addrs {
			fmt.Printf("  %s: %s\n", addr, plan.Blocked[addr])
		}
	}
}

func renderAttributeDiff(diff map[string]*ir.AttributeDiff) {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		d := diff[key]
		switch d.Action {
		case "create":
			fmt.Printf("\033[32m      + %s = %v\033[0m\n", key, formatValue(d.After))
		case "delete":
			fmt.Printf("\033[31m      - %s = %v\033[0m\n", key, formatValue(d.Before))
		default:
			suffix := ""
			if d.ForcesReplacement {
				suffix = " # forces replacement"
			}
			fmt.Printf("\033[33m      ~ %s = %v -> %v%s\033[0m\n", key, formatValue(d.Before), formatValue(d.After), suffix)
		}
	}
}

func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Update:  %d\n", plan.Summary.Update)
	fmt.Printf("  Replace: %d\n", plan.Summary.Replace)
	fmt.Printf("  Destroy: %d\n", plan.Summary.Destroy)
	fmt.Printf("  NoOp:    %d\n", plan.Summary.NoOp)
}

// progressCallback prints apply progress as resources start and finish.
func progressCallback(event engine.ApplyEvent) {
	switch event.Status {
	case "started":
		fmt.Printf("  %s: %s...\n", event.Addr, event.Action)
	case "completed":
		fmt.Printf("  \033[32m%s: %s complete (%s)\033[0m\n", event.Addr, event.Action, event.Duration.Round(time.Millisecond))
	case "failed":
		fmt.Printf("  \033[31m%s: %s FAILED: %v\033[0m\n", event.Addr, event.Action, event.Error)
	case "skipped":
		fmt.Printf("  %s: skipped\n", event.Addr)
	}
}

// runReportError maps the run report to an ExitError when anything failed.
func runReportError(report *engine.RunReport) error {
	fmt.Println()
	fmt.Print(report.Render())
	if code := report.ExitCode(); code != 0 {
		return &ExitError{Code: code, Err: fmt.Errorf("apply finished with failures")}
	}
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("\n%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
