package server_test

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrablock/internal/config"
	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/messaging"
	"github.com/jroosing/hydrablock/internal/server"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	lists := filepath.Join(dir, "lists")
	require.NoError(t, os.Mkdir(lists, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(lists, "base.txt"), []byte("||ads.example.com^\n##.sponsored\n"), 0o644))

	cfg := config.Default()
	cfg.Filtering.ListsDir = lists
	cfg.Storage.Path = filepath.Join(dir, "state.db")
	cfg.Blocker.PersistWindow = 10 * time.Millisecond
	cfg.API.Port = 0
	return &cfg
}

// ============================================================================
// Build Tests
// ============================================================================

func TestBuild_StartsComponents(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Enabled = false

	agent, err := server.NewRunner(nil).Build(context.Background(), cfg)
	require.NoError(t, err)
	defer agent.Close()

	assert.NotNil(t, agent.DB)
	assert.Nil(t, agent.API)
	assert.Nil(t, agent.Browser)
	assert.Empty(t, agent.APIAddr())
	assert.Equal(t, 1, agent.Blocker.Store().Stats().StaticRules)
	assert.Contains(t, agent.Dispatcher.Actions(), messaging.ActionGetStats)
}

func TestBuild_InMemory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Path = ""
	cfg.API.Enabled = false

	agent, err := server.NewRunner(nil).Build(context.Background(), cfg)
	require.NoError(t, err)
	defer agent.Close()

	assert.Nil(t, agent.DB)
	var resp messaging.EnabledResponse
	require.NoError(t, agent.Channel().Send(context.Background(), messaging.ActionGetEnabled, nil, &resp))
	assert.True(t, resp.Enabled)
}

func TestBuild_NilConfig(t *testing.T) {
	_, err := server.NewRunner(nil).Build(context.Background(), nil)
	assert.Error(t, err)
}

func TestBuild_StatePersistsAcrossRestarts(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Enabled = false
	runner := server.NewRunner(nil)

	agent, err := runner.Build(context.Background(), cfg)
	require.NoError(t, err)
	_, err = agent.Blocker.AddToWhitelist("news.example.org")
	require.NoError(t, err)
	require.True(t, agent.Blocker.Intercept(interceptor.Request{URL: "https://ads.example.com/a.js", ResourceType: interceptor.TypeScript}).Blocked())
	require.NoError(t, agent.Close())

	agent, err = runner.Build(context.Background(), cfg)
	require.NoError(t, err)
	defer agent.Close()
	assert.Equal(t, []string{"news.example.org"}, agent.Blocker.Whitelist())
	assert.EqualValues(t, 1, agent.Blocker.Stats().TotalBlocked)
}

// ============================================================================
// Run Tests
// ============================================================================

func TestRunWithContext_ServesAPIUntilCanceled(t *testing.T) {
	cfg := testConfig(t)
	runner := server.NewRunner(nil)

	started := make(chan string, 1)
	runner.OnStarted(func(a *server.Agent) { started <- a.APIAddr() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.RunWithContext(ctx, cfg) }()

	var addr string
	select {
	case addr = <-started:
	case err := <-done:
		t.Fatalf("runner exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not start")
	}
	require.NotEmpty(t, addr)

	resp, err := http.Post("http://"+addr+"/api/v1/messages", "application/json",
		strings.NewReader(`{"action":"checkUrl","url":"https://ads.example.com/pixel.gif"}`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"blocked":true`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunWithContext_PortInUse(t *testing.T) {
	cfg := testConfig(t)
	first, err := server.NewRunner(nil).Build(context.Background(), cfg)
	require.NoError(t, err)
	defer first.Close()

	_, port, _ := strings.Cut(first.APIAddr(), ":")
	second := testConfig(t)
	second.API.Port, err = strconv.Atoi(port)
	require.NoError(t, err)

	err = server.NewRunner(nil).RunWithContext(context.Background(), second)
	assert.ErrorContains(t, err, "failed to listen")
}

func TestBuild_ReusePortAllowsOverlappingAgents(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.ReusePort = true
	first, err := server.NewRunner(nil).Build(context.Background(), cfg)
	require.NoError(t, err)
	defer first.Close()

	_, port, _ := strings.Cut(first.APIAddr(), ":")
	second := testConfig(t)
	second.API.ReusePort = true
	second.API.Port, err = strconv.Atoi(port)
	require.NoError(t, err)

	agent, err := server.NewRunner(nil).Build(context.Background(), second)
	require.NoError(t, err)
	defer agent.Close()
	assert.Equal(t, first.APIAddr(), agent.APIAddr())
}
