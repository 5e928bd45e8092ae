package cli

import (
	"github.com/spf13/cobra"

	"github.com/stratus-io/stratus/internal/logging"
)

var (
	logLevel      string
	logFormat     string
	backendType   string
	backendConfig map[string]string
	parallelism   int
	orderHints    []string
	orderHintFile string
)

var rootCmd = &cobra.Command{
	Use:   "stratus",
	Short: "Declarative infrastructure provisioning",
	Long: `Stratus reconciles declared resource configuration against real
infrastructure. It resolves cross-resource references, orders work along
the dependency graph, diffs against per-resource state records, and applies
the resulting plan in parallel with failure containment.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel, logFormat)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&backendType, "backend", "dir", "State backend type (dir, s3)")
	rootCmd.PersistentFlags().StringToStringVar(&backendConfig, "backend-config", nil, "Backend configuration (format: key=value)")
	rootCmd.PersistentFlags().IntVar(&parallelism, "parallelism", 0, "Maximum concurrent provider operations (0 = default)")
	rootCmd.PersistentFlags().StringSliceVar(&orderHints, "order-hint", nil, "Preferred ordering among independent resources (addresses)")
	rootCmd.PersistentFlags().StringVar(&orderHintFile, "order-hint-file", "", "File with one address per line, ordering independent resources")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}
