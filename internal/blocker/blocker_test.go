package blocker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrablock/internal/blocker"
	"github.com/jroosing/hydrablock/internal/filtering"
	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/messaging"
	"github.com/jroosing/hydrablock/internal/metrics"
	"github.com/jroosing/hydrablock/internal/storage"
)

const testList = `! test list
||ads.example.com^
||track.io$script
@@||ads.example.com/allowed
example.org##.banner
##.sponsored
`

type fixture struct {
	dir string
	db  *storage.DB
	b   *blocker.Blocker
}

func writeList(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func testConfig(listsDir string) blocker.Config {
	fc := filtering.DefaultConfig()
	fc.ListsDir = listsDir
	fc.CacheSize = 100
	return blocker.Config{
		Filtering:     fc,
		Enabled:       true,
		LogRequests:   true,
		PersistWindow: 10 * time.Millisecond,
	}
}

// newFixture starts a blocker backed by a fresh database and list dir.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	lists := filepath.Join(dir, "lists")
	require.NoError(t, os.Mkdir(lists, 0o755))
	writeList(t, lists, "base.txt", testList)

	db, err := storage.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{dir: dir, db: db}
	f.b = f.start(t)
	return f
}

func (f *fixture) start(t *testing.T) *blocker.Blocker {
	t.Helper()
	b, err := blocker.New(testConfig(filepath.Join(f.dir, "lists")), blocker.Options{DB: f.db, Metrics: metrics.New()})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// restart closes the current blocker and starts a new one on the same DB.
func (f *fixture) restart(t *testing.T) *blocker.Blocker {
	t.Helper()
	require.NoError(t, f.b.Close())
	f.b = f.start(t)
	return f.b
}

func req(url string, rt interceptor.ResourceType) interceptor.Request {
	return interceptor.Request{URL: url, ResourceType: rt, TabID: 1}
}

// =============================================================================
// Interception
// =============================================================================

func TestBlocker_BlocksAndCounts(t *testing.T) {
	f := newFixture(t)

	res := f.b.Intercept(req("https://ads.example.com/banner.js", interceptor.TypeScript))
	assert.True(t, res.Blocked())
	assert.Equal(t, 1, res.RuleID)

	res = f.b.Intercept(req("https://track.io/pixel", interceptor.TypeImage))
	assert.True(t, res.Blocked())

	assert.False(t, f.b.Intercept(req("https://safe.io/", interceptor.TypeMainFrame)).Blocked())
	assert.False(t, f.b.Intercept(req("https://ads.example.com/allowed/x.png", interceptor.TypeImage)).Blocked())

	st := f.b.Stats()
	assert.Equal(t, uint64(2), st.TotalBlocked)
	assert.Equal(t, uint64(1), st.ScriptsBlocked)
	assert.Equal(t, uint64(1), st.AdsBlocked)
	assert.Equal(t, uint64(4), st.RequestsAnalyzed)

	log := f.b.RequestLog(0)
	require.Len(t, log, 2)
	assert.Equal(t, "https://track.io/pixel", log[0].URL)
}

func TestBlocker_WhitelistOverridesBlocking(t *testing.T) {
	f := newFixture(t)

	changed, err := f.b.AddToWhitelist("example.com")
	require.NoError(t, err)
	assert.True(t, changed)

	res := f.b.Intercept(req("https://ads.example.com/x", interceptor.TypeScript))
	assert.False(t, res.Blocked())
	assert.Equal(t, interceptor.ReasonWhitelist, res.Reason)

	_, err = f.b.AddToWhitelist("  ")
	assert.ErrorIs(t, err, blocker.ErrEmptyDomain)

	assert.True(t, f.b.RemoveFromWhitelist("example.com"))
	assert.True(t, f.b.Intercept(req("https://ads.example.com/x", interceptor.TypeScript)).Blocked())
}

func TestBlocker_ToggleDisablesEverything(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.b.ToggleEnabled())
	res := f.b.Intercept(req("https://ads.example.com/x", interceptor.TypeScript))
	assert.False(t, res.Blocked())
	assert.Equal(t, uint64(0), f.b.Stats().TotalBlocked)

	assert.True(t, f.b.ToggleEnabled())
	assert.True(t, f.b.Intercept(req("https://ads.example.com/x", interceptor.TypeScript)).Blocked())
}

func TestBlocker_CustomFilters(t *testing.T) {
	f := newFixture(t)

	changed, err := f.b.AddCustomFilter("||mine.net^")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.b.AddCustomFilter("||mine.net^")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.b.AddCustomFilter("|^")
	assert.ErrorIs(t, err, blocker.ErrEmptyFilter)

	res := f.b.Intercept(req("https://mine.net/a", interceptor.TypeImage))
	assert.True(t, res.Blocked())
	assert.GreaterOrEqual(t, res.RuleID, filtering.CustomRuleIDBase)

	f.b.UpdateCustomFilters([]string{"other.net"})
	assert.Equal(t, []string{"other.net"}, f.b.CustomFilters())
	assert.False(t, f.b.Intercept(req("https://mine.net/a", interceptor.TypeImage)).Blocked())
}

func TestBlocker_CheckURLHasNoSideEffects(t *testing.T) {
	f := newFixture(t)

	out := f.b.CheckURL("https://ads.example.com/x.js", interceptor.TypeScript)
	assert.True(t, out.Blocked)
	assert.Equal(t, "block", out.Decision)
	assert.Equal(t, "scripts", out.Category)
	assert.Equal(t, uint64(0), f.b.Stats().TotalBlocked)
	assert.Empty(t, f.b.RequestLog(0))
}

// =============================================================================
// Dynamic rules and blocked domains
// =============================================================================

func TestBlocker_DynamicRuleRemovalLeavesOthers(t *testing.T) {
	f := newFixture(t)

	r1, err := f.b.AddDynamicRule("one.com", nil, interceptor.ActionBlock)
	require.NoError(t, err)
	r2, err := f.b.AddDynamicRule("two.com", nil, interceptor.ActionBlock)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r1.ID, interceptor.DynamicRuleIDBase)
	assert.Greater(t, r2.ID, r1.ID)

	assert.True(t, f.b.RemoveDynamicRule(r1.ID))
	assert.False(t, f.b.RemoveDynamicRule(r1.ID))

	rules := f.b.DynamicRules()
	require.Len(t, rules, 1)
	assert.Equal(t, r2.ID, rules[0].ID)
	assert.False(t, f.b.Intercept(req("https://one.com/", interceptor.TypeOther)).Blocked())
	assert.True(t, f.b.Intercept(req("https://two.com/", interceptor.TypeOther)).Blocked())
}

func TestBlocker_AllowRuleOverridesStatic(t *testing.T) {
	f := newFixture(t)

	_, err := f.b.AddDynamicRule("ads.example.com/ok", nil, interceptor.ActionAllow)
	require.NoError(t, err)
	res := f.b.Intercept(req("https://ads.example.com/ok/1.js", interceptor.TypeScript))
	assert.False(t, res.Blocked())
	assert.Equal(t, interceptor.ReasonDynamicRule, res.Reason)
}

func TestBlocker_CustomFilterBeatsListException(t *testing.T) {
	f := newFixture(t)

	u := "https://ads.example.com/allowed/1.js"
	res := f.b.Intercept(req(u, interceptor.TypeScript))
	assert.False(t, res.Blocked())
	assert.Equal(t, filtering.ReasonAllowRule, res.Reason)

	added, err := f.b.AddCustomFilter("ads.example.com/allowed")
	require.NoError(t, err)
	require.True(t, added)

	res = f.b.Intercept(req(u, interceptor.TypeScript))
	assert.True(t, res.Blocked())
	assert.GreaterOrEqual(t, res.RuleID, filtering.CustomRuleIDBase)
}

func TestBlocker_BlockDomain(t *testing.T) {
	f := newFixture(t)

	domain, id, err := f.b.BlockDomain("https://cdn.shop.co.uk/path?q=1")
	require.NoError(t, err)
	assert.Equal(t, "shop.co.uk", domain)
	assert.GreaterOrEqual(t, id, interceptor.DynamicRuleIDBase)

	again, id2, err := f.b.BlockDomain("https://www.shop.co.uk/")
	require.NoError(t, err)
	assert.Equal(t, domain, again)
	assert.Equal(t, id, id2)

	assert.True(t, f.b.Intercept(req("https://img.shop.co.uk/a.png", interceptor.TypeImage)).Blocked())

	entries := f.b.BlockedDomains()
	require.Len(t, entries, 1)
	assert.Equal(t, "shop.co.uk", entries[0].Domain)
	assert.Equal(t, "https://cdn.shop.co.uk/path?q=1", entries[0].SourceURL)

	assert.True(t, f.b.UnblockDomain("SHOP.co.uk"))
	assert.Empty(t, f.b.BlockedDomains())
	assert.Empty(t, f.b.DynamicRules())
	assert.False(t, f.b.UnblockDomain("shop.co.uk"))
}

func TestBlocker_RemovingRuleDropsBlockedDomain(t *testing.T) {
	f := newFixture(t)
	_, id, err := f.b.BlockDomain("http://evil.com/")
	require.NoError(t, err)

	assert.True(t, f.b.RemoveDynamicRule(id))
	assert.Empty(t, f.b.BlockedDomains())
}

func TestRegistrableDomain(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    string
		wantErr error
	}{
		{"subdomain", "https://a.b.example.com/x", "example.com", nil},
		{"multi-label suffix", "https://news.bbc.co.uk", "bbc.co.uk", nil},
		{"no scheme", "tracker.net/p", "tracker.net", nil},
		{"ip", "http://10.0.0.1:8080/", "10.0.0.1", nil},
		{"localhost", "http://localhost/", "localhost", nil},
		{"empty", "", "", blocker.ErrInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := blocker.RegistrableDomain(tt.url)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Cosmetic and picker
// =============================================================================

func TestBlocker_CosmeticFilters(t *testing.T) {
	f := newFixture(t)

	all := f.b.CosmeticFilters("")
	assert.Equal(t, []string{".banner"}, all["example.org"])
	assert.Equal(t, []string{".sponsored"}, all[filtering.WildcardDomain])

	one := f.b.CosmeticFilters("example.org")
	assert.Equal(t, map[string][]string{"example.org": {".banner", ".sponsored"}}, one)
}

func TestBlocker_BlockElement(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.b.BlockElement("news.com", "#ad-slot"))
	assert.Contains(t, f.b.CosmeticFilters("news.com")["news.com"], "#ad-slot")

	err := f.b.BlockElement("news.com", "div[")
	assert.ErrorIs(t, err, blocker.ErrInvalidSelector)
}

type fakePicker struct {
	started, stopped []int
	err             error
}

func (p *fakePicker) StartPicker(_ context.Context, tab int) error {
	p.started = append(p.started, tab)
	return p.err
}

func (p *fakePicker) StopPicker(_ context.Context, tab int) error {
	p.stopped = append(p.stopped, tab)
	return p.err
}

func TestBlocker_Picker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.b.StartPicker(ctx, 1), blocker.ErrNoPicker)

	p := &fakePicker{}
	f.b.SetPickerHost(p)
	require.NoError(t, f.b.StartPicker(ctx, 3))
	require.NoError(t, f.b.StopPicker(ctx, 3))
	assert.Equal(t, []int{3}, p.started)
	assert.Equal(t, []int{3}, p.stopped)

	p.err = errors.New("tab gone")
	assert.Error(t, f.b.StartPicker(ctx, 4))
}

// =============================================================================
// Persistence
// =============================================================================

func TestBlocker_StatePersistsAcrossRestart(t *testing.T) {
	f := newFixture(t)

	_, err := f.b.AddToWhitelist("trusted.org")
	require.NoError(t, err)
	_, err = f.b.AddCustomFilter("||custom.net^")
	require.NoError(t, err)
	_, id, err := f.b.BlockDomain("https://bad.com/x")
	require.NoError(t, err)
	require.NoError(t, f.b.BlockElement("news.com", ".promo"))
	f.b.ToggleLogging()
	f.b.ToggleEnabled()
	f.b.ToggleEnabled()
	f.b.Intercept(req("https://ads.example.com/1", interceptor.TypeScript))

	b := f.restart(t)

	assert.Equal(t, []string{"trusted.org"}, b.Whitelist())
	assert.Equal(t, []string{"||custom.net^"}, b.CustomFilters())
	assert.True(t, b.Enabled())
	assert.False(t, b.Interceptor().LoggingEnabled())
	require.Len(t, b.BlockedDomains(), 1)
	assert.Equal(t, id, b.BlockedDomains()[0].RuleID)
	assert.Contains(t, b.CosmeticFilters("news.com")["news.com"], ".promo")
	assert.Equal(t, uint64(1), b.Stats().TotalBlocked)

	next, err := b.AddDynamicRule("later.com", nil, interceptor.ActionBlock)
	require.NoError(t, err)
	assert.Greater(t, next.ID, id)
}

func TestBlocker_StartSkipsCorruptKeys(t *testing.T) {
	dir := t.TempDir()
	lists := filepath.Join(dir, "lists")
	require.NoError(t, os.Mkdir(lists, 0o755))
	writeList(t, lists, "base.txt", testList)

	db, err := storage.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Set(storage.KeyWhitelist, 42))
	require.NoError(t, db.Set(storage.KeyEnabled, "yes"))
	require.NoError(t, db.Set(storage.KeyDynamicRules, map[string]int{"id": 1}))
	require.NoError(t, db.Set(storage.KeyCustomFilters, []string{"||custom.net^"}))

	cfg := testConfig(lists)
	cfg.Filtering.Whitelist = []string{"default.org"}
	b, err := blocker.New(cfg, blocker.Options{DB: db})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(func() { _ = b.Close() })

	assert.Equal(t, []string{"default.org"}, b.Whitelist())
	assert.True(t, b.Enabled())
	assert.Empty(t, b.DynamicRules())
	assert.Equal(t, []string{"||custom.net^"}, b.CustomFilters())
	assert.True(t, b.Intercept(req("https://ads.example.com/1", interceptor.TypeScript)).Blocked())
}

func TestBlocker_StatsFlushAfterWindow(t *testing.T) {
	f := newFixture(t)
	f.b.Intercept(req("https://ads.example.com/1", interceptor.TypeScript))

	require.Eventually(t, func() bool {
		var c struct {
			TotalBlocked uint64 `json:"totalBlocked"`
		}
		return f.db.Get(storage.KeyStats, &c) == nil && c.TotalBlocked == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBlocker_ResetStats(t *testing.T) {
	f := newFixture(t)
	f.b.Intercept(req("https://ads.example.com/1", interceptor.TypeScript))
	f.b.ResetStats()

	assert.Equal(t, uint64(0), f.b.Stats().TotalBlocked)
	assert.Empty(t, f.b.RequestLog(0))

	b := f.restart(t)
	assert.Equal(t, uint64(0), b.Stats().TotalBlocked)
}

func TestBlocker_ExportImport(t *testing.T) {
	f := newFixture(t)
	_, err := f.b.AddToWhitelist("a.org")
	require.NoError(t, err)
	_, _, err = f.b.BlockDomain("https://b.com")
	require.NoError(t, err)
	f.b.Intercept(req("https://ads.example.com/1", interceptor.TypeImage))

	data := f.b.Export()
	assert.Equal(t, messaging.ExportVersion, data.Version)

	other := newFixture(t)
	require.NoError(t, other.b.Import(data))
	assert.Equal(t, []string{"a.org"}, other.b.Whitelist())
	assert.Len(t, other.b.BlockedDomains(), 1)
	assert.Equal(t, uint64(1), other.b.Stats().AdsBlocked)
	assert.True(t, other.b.Intercept(req("https://b.com/x", interceptor.TypeOther)).Blocked())

	data.Version = messaging.ExportVersion + 1
	assert.ErrorIs(t, other.b.Import(data), blocker.ErrExportVersion)
}

func TestBlocker_ImportAppliesOnlyPresentSections(t *testing.T) {
	f := newFixture(t)
	_, err := f.b.AddCustomFilter("||custom.net^")
	require.NoError(t, err)
	_, _, err = f.b.BlockDomain("https://bad.com/x")
	require.NoError(t, err)
	f.b.Intercept(req("https://ads.example.com/1", interceptor.TypeScript))

	require.NoError(t, f.b.Import(messaging.ExportData{Whitelist: []string{"example.com"}}))

	assert.Equal(t, []string{"example.com"}, f.b.Whitelist())
	assert.True(t, f.b.Enabled())
	assert.True(t, f.b.Interceptor().LoggingEnabled())
	assert.Equal(t, []string{"||custom.net^"}, f.b.CustomFilters())
	assert.Len(t, f.b.DynamicRules(), 1)
	assert.Len(t, f.b.BlockedDomains(), 1)
	assert.Equal(t, uint64(1), f.b.Stats().TotalBlocked)

	disabled := false
	require.NoError(t, f.b.Import(messaging.ExportData{Enabled: &disabled, DynamicRules: []interceptor.DynamicRule{}}))
	assert.False(t, f.b.Enabled())
	assert.Empty(t, f.b.DynamicRules())
	assert.Empty(t, f.b.BlockedDomains())
	assert.Equal(t, []string{"example.com"}, f.b.Whitelist())
}

func TestBlocker_WithoutDatabase(t *testing.T) {
	cfg := testConfig("")
	cfg.Filtering.Whitelist = []string{"seed.org"}
	cfg.Filtering.CustomFilters = []string{"seeded.net"}

	b, err := blocker.New(cfg, blocker.Options{})
	require.NoError(t, err)
	require.NoError(t, b.Start(context.Background()))
	defer b.Close()

	assert.Equal(t, []string{"seed.org"}, b.Whitelist())
	assert.True(t, b.Intercept(req("https://seeded.net/", interceptor.TypeOther)).Blocked())
}

func TestBlocker_ConcurrentIntercepts(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				f.b.Intercept(req("https://ads.example.com/x", interceptor.TypeScript))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			_, _ = f.b.AddCustomFilter("x" + string(rune('a'+j)) + ".com")
		}
	}()
	wg.Wait()

	assert.Equal(t, uint64(400), f.b.Stats().TotalBlocked)
}
