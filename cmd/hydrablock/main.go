// Command hydrablock runs the content-filtering agent and talks to a running one.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jroosing/hydrablock/internal/config"
	"github.com/jroosing/hydrablock/internal/logging"
)

var (
	cfgFile  string
	jsonLogs bool
	debug    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hydrablock",
	Short: "Content-filtering agent for ads, trackers and anti-adblock scripts",
	Long: `hydrablock blocks ad and tracker requests using adblock-style filter
lists, hides page elements with cosmetic rules and neutralises common
anti-adblock scripts. It runs as an agent with a management API and can
drive a Chrome instance directly.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to YAML configuration file (or set "+config.ConfigPathEnv+")")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Enable JSON structured logging")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd, browseCmd, sendCmd, checkCmd, filterHTMLCmd)
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ResolveConfigPath(cfgFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if debug {
		cfg.Logging.Level = "DEBUG"
	}
	return cfg, nil
}

// setupLogger installs the process logger described by cfg.
func setupLogger(cfg *config.Config) *slog.Logger {
	return logging.Configure(logging.FromConfig(cfg.Logging))
}
