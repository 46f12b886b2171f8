package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArcaneAIAutomation/opspilot/pkg/config"
	"github.com/ArcaneAIAutomation/opspilot/pkg/runtime"

	// Built-in modules register their factories at init.
	_ "github.com/ArcaneAIAutomation/opspilot/pkg/correlate"
	_ "github.com/ArcaneAIAutomation/opspilot/pkg/detect"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "opspilot",
	Short: "OpsPilot - Operator-in-the-loop incident management runtime",
	Long: `OpsPilot ingests logs, detects threshold breaches, correlates the
resulting incidents, and gates every mutating remediation behind an
explicit human approval with a full audit trail.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"OpsPilot version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "opspilot.yaml", "Path to the configuration file")
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "opspilot.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OpsPilot runtime",
	Long: `Load the configuration, wire the core services, register built-in
and discovered modules, and serve until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		rt, err := runtime.New(cfg)
		if err != nil {
			return err
		}
		if err := rt.RegisterModules(); err != nil {
			return err
		}
		return rt.Run(context.Background())
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		fmt.Printf("Configuration valid.\n")
		fmt.Printf("  System: %s (%s)\n", cfg.System.Name, cfg.System.Environment)
		fmt.Printf("  Port: %d\n", cfg.System.Port)
		fmt.Printf("  Storage: %s\n", cfg.Storage.Engine)
		fmt.Printf("  Modules: %d configured\n", len(cfg.Modules))
		return nil
	},
}
