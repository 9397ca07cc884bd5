// Command bench measures request-interception throughput, either in-process
// against a freshly loaded rule store or against a running agent's checkUrl
// action.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jroosing/hydrablock/internal/filtering"
	"github.com/jroosing/hydrablock/internal/interceptor"
	"github.com/jroosing/hydrablock/internal/messaging"
	"github.com/jroosing/hydrablock/internal/stats"
)

func main() {
	var (
		addr        = flag.String("addr", "", "Agent base URL; empty benchmarks in-process")
		apiKey      = flag.String("api-key", "", "API key for -addr")
		list        = flag.String("list", "", "Filter list file for in-process mode (default: synthetic)")
		rules       = flag.Int("rules", 20000, "Synthetic rule count when -list is empty")
		cacheSize   = flag.Int64("cache", 10000, "Verdict cache size for in-process mode")
		concurrency = flag.Int("concurrency", 64, "Number of concurrent workers")
		requests    = flag.Int("requests", 200000, "Total number of requests")
		timeout     = flag.Duration("timeout", 2*time.Second, "Per-request timeout in -addr mode")
	)
	flag.Parse()

	check, err := newChecker(*addr, *apiKey, *list, *rules, *cacheSize, *timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	urls := sampleURLs(*rules)

	conc := max(*concurrency, 1)
	total := max(*requests, 1)
	per := total / conc
	rem := total % conc

	lat := make([]float64, 0, total)
	var latMu sync.Mutex
	var blocked, failed int
	var countMu sync.Mutex

	t0 := time.Now()
	var wg sync.WaitGroup
	for i := range conc {
		n := per
		if i < rem {
			n++
		}
		if n <= 0 {
			continue
		}
		wg.Add(1)
		go func(worker, num int) {
			defer wg.Done()
			local := make([]float64, 0, num)
			var b, f int
			for j := range num {
				u := urls[(worker*num+j)%len(urls)]
				start := time.Now()
				isBlocked, err := check(u)
				if err != nil {
					f++
					continue
				}
				if isBlocked {
					b++
				}
				local = append(local, float64(time.Since(start).Nanoseconds())/1e6)
			}
			latMu.Lock()
			lat = append(lat, local...)
			latMu.Unlock()
			countMu.Lock()
			blocked += b
			failed += f
			countMu.Unlock()
		}(i, n)
	}
	wg.Wait()
	elapsed := time.Since(t0).Seconds()

	if len(lat) == 0 {
		fmt.Printf("no successful requests (%d failed)\n", failed)
		return
	}
	sort.Float64s(lat)
	qps := float64(len(lat)) / elapsed

	mode := "in-process"
	if *addr != "" {
		mode = *addr
	}
	fmt.Printf("mode=%s concurrency=%d requests=%d blocked=%d failed=%d\n", mode, conc, len(lat), blocked, failed)
	fmt.Printf("elapsed_s=%.3f qps=%.1f\n", elapsed, qps)
	fmt.Printf("latency_ms p50=%.4f p95=%.4f p99=%.4f min=%.4f max=%.4f\n",
		percentile(lat, 50), percentile(lat, 95), percentile(lat, 99), lat[0], lat[len(lat)-1])
}

// checkFunc decides one URL.
type checkFunc func(url string) (blocked bool, err error)

func newChecker(addr, apiKey, list string, rules int, cacheSize int64, timeout time.Duration) (checkFunc, error) {
	if addr != "" {
		client := messaging.NewClient(addr, messaging.WithAPIKey(apiKey))
		return func(u string) (bool, error) {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			var res messaging.CheckResponse
			err := client.Send(ctx, messaging.ActionCheckURL, messaging.URLRequest{URL: u, ResourceType: interceptor.TypeScript}, &res)
			return res.Blocked, err
		}, nil
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store, err := filtering.NewStore(filtering.StoreConfig{Logger: logger, CacheSize: cacheSize})
	if err != nil {
		return nil, err
	}

	src := filtering.Source{Name: "synthetic", Text: syntheticList(rules), Format: filtering.FormatAdblock}
	if list != "" {
		src = filtering.Source{Name: list, Path: list, Format: filtering.FormatAuto}
	}
	res := store.Load(context.Background(), []filtering.Source{src})
	fmt.Printf("loaded rules=%d from %s\n", res.Rules, src.Name)

	ic := interceptor.New(interceptor.Config{
		Matcher: store,
		Ledger:  stats.NewLedger(1000),
		Logger:  logger,
		Enabled: true,
	})
	return func(u string) (bool, error) {
		return ic.Intercept(interceptor.Request{URL: u, ResourceType: interceptor.TypeScript}).Blocked(), nil
	}, nil
}

func syntheticList(n int) string {
	var sb strings.Builder
	for i := range n {
		fmt.Fprintf(&sb, "||ads%d.example.com^\n", i)
	}
	return sb.String()
}

// sampleURLs mixes hits and misses roughly one to three.
func sampleURLs(rules int) []string {
	n := max(rules, 1024)
	out := make([]string, 0, n)
	for i := range n {
		if i%4 == 0 {
			out = append(out, fmt.Sprintf("https://ads%d.example.com/pixel.js", i%max(rules, 1)))
			continue
		}
		out = append(out, fmt.Sprintf("https://cdn%d.example.net/app/%d.js", i, i))
	}
	return out
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(float64(len(sorted))*float64(p)/100.0) - 1
	idx = max(idx, 0)
	idx = min(idx, len(sorted)-1)
	return sorted[idx]
}
