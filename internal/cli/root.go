// Package cli provides the adminrelay command-line interface.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/optiview/adminrelay/internal/config"
	"github.com/optiview/adminrelay/internal/logging"
	"github.com/optiview/adminrelay/internal/version"
)

var (
	// Global flags
	cfgFile string
	verbose bool

	// Global logger, initialized in PersistentPreRun
	logger zerolog.Logger
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "adminrelay",
		Short: "Bulk mutation relay for the analytics admin API",
		Long: `adminrelay ` + version.Version + `
Server-side relay that performs bulk create/update/delete batches against
the analytics admin API on behalf of authenticated users, under per-feature
usage tiers, per-user rate limits, and a results cache.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
			logger = logging.New(verbose)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newTierCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the adminrelay version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("adminrelay " + version.Version + " (built " + version.BuildTime + ")")
		},
	}
}

// loadConfig resolves the configuration from the --config flag or the default
// location.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}
