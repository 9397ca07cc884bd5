package stats_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/hydrablock/internal/stats"
)

func TestLedger_Increment(t *testing.T) {
	l := stats.NewLedger(0)

	l.Increment(stats.CategoryScripts)
	l.Increment(stats.CategoryTrackers)
	l.Increment(stats.CategoryAds)
	l.Increment(stats.Category("other"))

	v := l.Snapshot()
	assert.Equal(t, uint64(4), v.TotalBlocked)
	assert.Equal(t, uint64(1), v.ScriptsBlocked)
	assert.Equal(t, uint64(1), v.TrackersBlocked)
	assert.Equal(t, uint64(2), v.AdsBlocked, "unknown categories count as ads")
}

func TestLedger_CountersNeverDecrease(t *testing.T) {
	l := stats.NewLedger(10)
	var prev stats.Counters
	cats := []stats.Category{stats.CategoryAds, stats.CategoryScripts, stats.CategoryTrackers}
	for i := range 300 {
		l.Increment(cats[i%len(cats)])
		l.Analyzed()
		cur := l.Snapshot().Counters
		assert.GreaterOrEqual(t, cur.TotalBlocked, prev.TotalBlocked)
		assert.GreaterOrEqual(t, cur.AdsBlocked, prev.AdsBlocked)
		assert.GreaterOrEqual(t, cur.TrackersBlocked, prev.TrackersBlocked)
		assert.GreaterOrEqual(t, cur.ScriptsBlocked, prev.ScriptsBlocked)
		prev = cur
	}
	assert.Equal(t, uint64(300), prev.RequestsAnalyzed)
}

func TestLedger_ResetZeroesEverything(t *testing.T) {
	l := stats.NewLedger(0)
	for range 5 {
		l.Increment(stats.CategoryScripts)
		l.Record(stats.Entry{URL: "https://a/"})
	}

	l.Reset()
	v := l.Snapshot()
	assert.Equal(t, stats.Counters{}, v.Counters)
	assert.Equal(t, 0, v.LogSize)
	assert.Empty(t, l.Log(0))
}

func TestLedger_ResetIsAtomicUnderConcurrency(t *testing.T) {
	l := stats.NewLedger(0)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				l.Increment(stats.CategoryTrackers)
			}
		}
	}()

	for range 200 {
		l.Reset()
		v := l.Snapshot()
		// Every counter moves with total, so a torn reset would break this.
		assert.Equal(t, v.TotalBlocked, v.TrackersBlocked)
	}
	close(stop)
	wg.Wait()
}

func TestLedger_LogIsBoundedFIFO(t *testing.T) {
	l := stats.NewLedger(stats.DefaultLogCapacity)
	for i := 1; i <= 1001; i++ {
		l.Record(stats.Entry{URL: fmt.Sprintf("https://x/%d", i)})
	}

	entries := l.Log(0)
	require.Len(t, entries, 1000)
	assert.Equal(t, "https://x/1001", entries[0].URL, "newest first")
	assert.Equal(t, "https://x/2", entries[999].URL, "oldest kept")
	for _, e := range entries {
		assert.NotEqual(t, "https://x/1", e.URL)
	}
	assert.Equal(t, 1000, l.LogSize())
}

func TestLedger_LogLimitAndTimestamp(t *testing.T) {
	l := stats.NewLedger(5)
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.Record(stats.Entry{URL: "a", Timestamp: fixed})
	l.Record(stats.Entry{URL: "b"})
	l.Record(stats.Entry{URL: "c"})

	got := l.Log(2)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].URL)
	assert.Equal(t, "b", got[1].URL)
	assert.False(t, got[1].Timestamp.IsZero())

	all := l.Log(100)
	require.Len(t, all, 3)
	assert.Equal(t, fixed, all[2].Timestamp)
}

func TestLedger_ClearLogKeepsCounters(t *testing.T) {
	l := stats.NewLedger(3)
	l.Increment(stats.CategoryAds)
	l.Record(stats.Entry{URL: "a"})

	l.ClearLog()
	assert.Empty(t, l.Log(0))
	assert.Equal(t, uint64(1), l.Snapshot().TotalBlocked)
}

func TestLedger_Restore(t *testing.T) {
	l := stats.NewLedger(3)
	l.Restore(stats.Counters{TotalBlocked: 7, AdsBlocked: 4, ScriptsBlocked: 3})
	l.Increment(stats.CategoryAds)

	v := l.Snapshot()
	assert.Equal(t, uint64(8), v.TotalBlocked)
	assert.Equal(t, uint64(5), v.AdsBlocked)

	l.RestoreLog([]stats.Entry{{URL: "n4"}, {URL: "n3"}, {URL: "n2"}, {URL: "n1"}})
	got := l.Log(0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"n4", "n3", "n2"}, []string{got[0].URL, got[1].URL, got[2].URL})

	l.Record(stats.Entry{URL: "n5"})
	assert.Equal(t, "n5", l.Log(1)[0].URL)
	assert.Equal(t, 3, l.LogSize())
}

func TestLedger_SnapshotIsACopy(t *testing.T) {
	l := stats.NewLedger(0)
	l.Increment(stats.CategoryAds)
	v := l.Snapshot()
	v.TotalBlocked = 99
	assert.Equal(t, uint64(1), l.Snapshot().TotalBlocked)

	l.Record(stats.Entry{URL: "a"})
	entries := l.Log(0)
	entries[0].URL = "mutated"
	assert.Equal(t, "a", l.Log(0)[0].URL)
}
