package service

import (
	"sync"
	"time"
)

// UpgradeURL points at the upstream's billing page for quota remediation.
const UpgradeURL = "https://ai.google.dev/pricing"

// QuotaInfo is the advisory payload returned with quota-exhaustion responses.
type QuotaInfo struct {
	IsQuotaExceeded bool     `json:"isQuotaExceeded"`
	RetryAfter      string   `json:"retryAfter"`
	Suggestions     []string `json:"suggestions"`
	UpgradeURL      string   `json:"upgradeUrl"`
}

// AdviseQuota maps an error to user-facing quota guidance.
func AdviseQuota(err error) QuotaInfo {
	if !IsKind(err, KindQuotaExceeded) {
		return QuotaInfo{
			IsQuotaExceeded: false,
			Suggestions:     []string{},
			UpgradeURL:      UpgradeURL,
		}
	}
	return QuotaInfo{
		IsQuotaExceeded: true,
		RetryAfter:      "The free-tier quota resets daily. Try again in a few hours.",
		Suggestions: []string{
			"Wait for the daily quota to reset",
			"Reduce the number of extraction requests",
			"Upgrade to a paid plan for higher limits",
		},
		UpgradeURL: UpgradeURL,
	}
}

// ShouldFallback reports whether an error warrants substituting the canned
// fallback record. Tagged kinds decide first; the message-substring check
// remains for untyped errors.
func ShouldFallback(err error) bool {
	return IsKind(err, KindQuotaExceeded)
}

// UsageTracker counts upstream model calls for the current UTC day. It is
// process-local and not persisted: the reported numbers are a per-instance
// estimate, not an authoritative quota counter.
type UsageTracker struct {
	mu    sync.Mutex
	day   string
	count int
	limit int
}

func NewUsageTracker(dailyLimit int) *UsageTracker {
	return &UsageTracker{
		day:   time.Now().UTC().Format("2006-01-02"),
		limit: dailyLimit,
	}
}

// Record notes one upstream call, resetting the count when the UTC day rolls.
func (t *UsageTracker) Record() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDay()
	t.count++
}

// Usage returns the calls made today, the daily limit, and the remainder.
func (t *UsageTracker) Usage() (used, limit, remaining int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rollDay()

	remaining = t.limit - t.count
	if remaining < 0 {
		remaining = 0
	}
	return t.count, t.limit, remaining
}

// rollDay resets the counter when the UTC date changes. Must be called with
// lock held.
func (t *UsageTracker) rollDay() {
	today := time.Now().UTC().Format("2006-01-02")
	if today != t.day {
		t.day = today
		t.count = 0
	}
}
