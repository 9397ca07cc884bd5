package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jroosing/hydrablock/internal/messaging"
)

var sendCmd = &cobra.Command{
	Use:   "send <action> [key=value...]",
	Short: "Send one message to a running agent and print the reply",
	Long: `Send delivers {"action": <action>, ...payload} to the agent's message bus.

The payload is built from key=value arguments (values that parse as JSON
keep their type) or taken verbatim from --data:

  hydrablock send getStats
  hydrablock send addToWhitelist domain=example.com
  hydrablock send getRequestLog limit=20
  hydrablock send addDynamicRule --data '{"pattern":"ads.","resourceTypes":["script"]}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().String("addr", "", "Agent base URL (default: from api.host/api.port)")
	sendCmd.Flags().String("api-key", "", "API key (default: api.api_key)")
	sendCmd.Flags().String("data", "", "Raw JSON object payload")
	sendCmd.Flags().Duration("timeout", 10*time.Second, "Request timeout")
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = "http://" + net.JoinHostPort(cfg.API.Host, strconv.Itoa(cfg.API.Port))
	}
	key, _ := cmd.Flags().GetString("api-key")
	if key == "" {
		key = cfg.API.APIKey
	}
	data, _ := cmd.Flags().GetString("data")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	payload, err := buildPayload(data, args[1:])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client := messaging.NewClient(addr, messaging.WithAPIKey(key))
	var reply json.RawMessage
	if err := client.Send(ctx, args[0], payload, &reply); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(reply)
}

// buildPayload merges a raw JSON object with key=value pairs. Values that are
// valid JSON keep their type; anything else is a string.
func buildPayload(data string, pairs []string) (map[string]json.RawMessage, error) {
	payload := map[string]json.RawMessage{}
	if strings.TrimSpace(data) != "" {
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid argument %q, want key=value", p)
		}
		if json.Valid([]byte(v)) {
			payload[k] = json.RawMessage(v)
			continue
		}
		quoted, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		payload[k] = quoted
	}
	return payload, nil
}
