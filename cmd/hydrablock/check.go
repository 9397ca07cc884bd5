package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/server"
)

// errBlocked makes check exit non-zero when a URL would be blocked.
var errBlocked = errors.New("one or more urls are blocked")

var checkCmd = &cobra.Command{
	Use:   "check <url...>",
	Short: "Evaluate URLs against the configured filter lists",
	Long: `Check loads the configured lists and persisted settings, then prints the
verdict for each URL without counting or logging it. Exits non-zero when
any URL would be blocked.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringP("type", "t", string(interceptor.TypeOther), "Resource type (script, image, xmlhttprequest, ...)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.API.Enabled = false
	cfg.Browser.Enabled = false
	logger := setupLogger(cfg)

	agent, err := server.NewRunner(logger).Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer agent.Close()

	rt, _ := cmd.Flags().GetString("type")
	enc := json.NewEncoder(os.Stdout)
	blocked := false
	for _, u := range args {
		res := agent.Blocker.CheckURL(u, interceptor.NormalizeType(rt))
		blocked = blocked || res.Blocked
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	if blocked {
		return errBlocked
	}
	return nil
}
