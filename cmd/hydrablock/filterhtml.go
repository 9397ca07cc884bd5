package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/jroosing/hydrablock/internal/cosmetic"
	"github.com/jroosing/hydrablock/internal/cosmetic/htmldoc"
	"github.com/jroosing/hydrablock/internal/messaging"
	"github.com/jroosing/hydrablock/internal/server"
)

var filterHTMLCmd = &cobra.Command{
	Use:   "filter-html [file]",
	Short: "Apply cosmetic rules to an HTML document",
	Long: `filter-html parses an HTML document (a file or stdin), hides every element
matched by the cosmetic rules for --domain and writes the result.

Rules come from a running agent when --addr is given, otherwise from the
configured lists loaded in-process.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFilterHTML,
}

func init() {
	filterHTMLCmd.Flags().String("domain", "", "Page host the rules are selected for (default: from --url)")
	filterHTMLCmd.Flags().String("url", "", "Page URL; its host is used when --domain is empty")
	filterHTMLCmd.Flags().StringP("output", "o", "-", "Output file (- for stdout)")
	filterHTMLCmd.Flags().String("addr", "", "Fetch rules from the agent at this base URL")
	filterHTMLCmd.Flags().String("api-key", "", "API key for --addr (default: api.api_key)")
}

func runFilterHTML(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)

	domain, _ := cmd.Flags().GetString("domain")
	if domain == "" {
		raw, _ := cmd.Flags().GetString("url")
		if u, err := url.Parse(raw); err == nil {
			domain = u.Hostname()
		}
	}

	in, closeIn, err := openInput(args)
	if err != nil {
		return err
	}
	defer closeIn()

	doc, err := htmldoc.Parse(in, domain)
	if err != nil {
		return fmt.Errorf("failed to parse html: %w", err)
	}

	var ch messaging.Channel
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		key, _ := cmd.Flags().GetString("api-key")
		if key == "" {
			key = cfg.API.APIKey
		}
		ch = messaging.NewClient(addr, messaging.WithAPIKey(key))
	} else {
		cfg.API.Enabled = false
		cfg.Browser.Enabled = false
		agent, err := server.NewRunner(logger).Build(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer agent.Close()
		ch = agent.Channel()
	}

	engine := cosmetic.NewEngine(cosmetic.EngineConfig{
		Source: cosmetic.ChannelSource{Channel: ch},
		Logger: logger,
	})
	if err := engine.Start(cmd.Context(), doc); err != nil {
		return err
	}
	defer engine.Stop()

	logger.Info("cosmetic rules applied", "domain", domain, "selectors", len(engine.Selectors()), "hidden", engine.Hidden())

	out, _ := cmd.Flags().GetString("output")
	if out == "-" || out == "" {
		return doc.Render(os.Stdout)
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := doc.Render(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// errNoInput is returned when filter-html gets neither a file nor stdin.
var errNoInput = errors.New("no input: pass a file or pipe HTML on stdin")

func openInput(args []string) (io.Reader, func(), error) {
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		return f, func() { _ = f.Close() }, nil
	}
	if info, err := os.Stdin.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
		return nil, nil, errNoInput
	}
	return os.Stdin, func() {}, nil
}
