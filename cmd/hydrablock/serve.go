package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jroosing/hydrablock/internal/config"
	"github.com/jroosing/hydrablock/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent and its management API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var browseCmd = &cobra.Command{
	Use:   "browse [url...]",
	Short: "Run the agent driving Chrome, opening each url in a filtered tab",
	RunE:  runBrowse,
}

func init() {
	for _, cmd := range []*cobra.Command{serveCmd, browseCmd} {
		cmd.Flags().String("host", "", "Override API bind host")
		cmd.Flags().Int("port", 0, "Override API bind port")
		cmd.Flags().Bool("no-api", false, "Disable the management API")
		cmd.Flags().String("storage", "", "Override the settings database path")
	}
	serveCmd.Flags().Bool("browser", false, "Also drive Chrome (see browser.* config)")
	browseCmd.Flags().String("remote", "", "DevTools WebSocket URL of a running Chrome")
	browseCmd.Flags().Bool("headful", false, "Show the launched Chrome window")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}
	if on, _ := cmd.Flags().GetBool("browser"); on {
		cfg.Browser.Enabled = true
	}
	return run(cfg)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}
	cfg.Browser.Enabled = true
	if len(args) > 0 {
		cfg.Browser.StartURLs = args
	}
	if remote, _ := cmd.Flags().GetString("remote"); remote != "" {
		cfg.Browser.RemoteURL = remote
	}
	if headful, _ := cmd.Flags().GetBool("headful"); headful {
		cfg.Browser.Headless = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return run(cfg)
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.API.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.API.Port = port
	}
	if noAPI, _ := cmd.Flags().GetBool("no-api"); noAPI {
		cfg.API.Enabled = false
	}
	if path, _ := cmd.Flags().GetString("storage"); path != "" {
		cfg.Storage.Path = path
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func run(cfg *config.Config) error {
	logger := setupLogger(cfg)
	logger.Info("hydrablock starting",
		"api", cfg.API.Enabled,
		"api_host", cfg.API.Host,
		"api_port", cfg.API.Port,
		"browser", cfg.Browser.Enabled,
		"lists_dir", cfg.Filtering.ListsDir,
		"sources", len(cfg.Filtering.Sources),
	)

	runner := server.NewRunner(logger)
	if err := runner.Run(cfg); err != nil {
		return fmt.Errorf("agent exited with error: %w", err)
	}
	return nil
}
