// Package stats keeps block counters and the recent request log.
package stats

import (
	"sync"
	"time"
)

// DefaultLogCapacity is the number of request log entries kept.
const DefaultLogCapacity = 1000

// Category is a block counter bucket.
type Category string

const (
	CategoryAds      Category = "ads"
	CategoryTrackers Category = "trackers"
	CategoryScripts  Category = "scripts"
)

// Counters are the persisted block counters.
type Counters struct {
	TotalBlocked     uint64 `json:"totalBlocked"`
	AdsBlocked       uint64 `json:"adsBlocked"`
	TrackersBlocked  uint64 `json:"trackersBlocked"`
	ScriptsBlocked   uint64 `json:"scriptsBlocked"`
	RequestsAnalyzed uint64 `json:"requestsAnalyzed"`
}

// Entry is one request log record.
type Entry struct {
	Timestamp     time.Time `json:"timestamp"`
	URL           string    `json:"url"`
	Type          string    `json:"type"`
	MatchedRuleID int       `json:"matchedRuleId"`
	TabID         int       `json:"tabId,omitempty"`
}

// View is a read-only copy of the ledger.
type View struct {
	Counters
	LogSize int `json:"logSize"`
}

// Ledger owns block counters and a bounded FIFO request log.
//
// Counters only grow except through Reset, which zeroes every counter and
// clears the log under a single lock. All methods are safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	counters Counters

	// ring holds up to cap(ring) entries; head is the next write slot.
	ring []Entry
	head int
	size int
}

// NewLedger creates a ledger whose log keeps logCapacity entries. A
// non-positive capacity uses DefaultLogCapacity.
func NewLedger(logCapacity int) *Ledger {
	if logCapacity <= 0 {
		logCapacity = DefaultLogCapacity
	}
	return &Ledger{ring: make([]Entry, logCapacity)}
}

// Increment counts one blocked request in category. Unknown categories count
// as ads.
func (l *Ledger) Increment(category Category) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.counters.TotalBlocked++
	switch category {
	case CategoryScripts:
		l.counters.ScriptsBlocked++
	case CategoryTrackers:
		l.counters.TrackersBlocked++
	default:
		l.counters.AdsBlocked++
	}
}

// Analyzed counts one evaluated request, blocked or not.
func (l *Ledger) Analyzed() {
	l.mu.Lock()
	l.counters.RequestsAnalyzed++
	l.mu.Unlock()
}

// Record appends e to the log, evicting the oldest entry at capacity.
func (l *Ledger) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.ring[l.head] = e
	l.head = (l.head + 1) % len(l.ring)
	if l.size < len(l.ring) {
		l.size++
	}
}

// Log returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (l *Ledger) Log(limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.head - i + len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out
}

// LogSize returns the number of log entries.
func (l *Ledger) LogSize() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// ClearLog drops every log entry and keeps the counters.
func (l *Ledger) ClearLog() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearLogLocked()
}

func (l *Ledger) clearLogLocked() {
	clear(l.ring)
	l.head = 0
	l.size = 0
}

// Reset zeroes every counter and clears the log atomically.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters = Counters{}
	l.clearLogLocked()
}

// Snapshot returns the current counters.
func (l *Ledger) Snapshot() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	return View{Counters: l.counters, LogSize: l.size}
}

// Restore replaces the counters with previously persisted values.
func (l *Ledger) Restore(c Counters) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters = c
}

// RestoreLog replaces the log with entries given newest first. Entries beyond
// capacity are dropped from the old end.
func (l *Ledger) RestoreLog(newestFirst []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearLogLocked()
	if len(newestFirst) > len(l.ring) {
		newestFirst = newestFirst[:len(l.ring)]
	}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		l.ring[l.head] = newestFirst[i]
		l.head = (l.head + 1) % len(l.ring)
		l.size++
	}
}
