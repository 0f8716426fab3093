// Package costs tracks the monetary cost of AI token usage and enforces
// daily, monthly, and per-request spend ceilings before a billable call is
// dispatched.
package costs

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"design-proxy/internal/storage"
	"design-proxy/pkg/models"
)

const (
	usageLogKey   = "usage:log"
	usageLimitKey = "usage:limits"

	dailyWindow   = 24 * time.Hour
	monthlyWindow = 30 * 24 * time.Hour

	// charsPerToken is the rough prompt-length heuristic used for
	// pre-dispatch estimates.
	charsPerToken = 4

	recentHistorySize = 10
)

// DefaultLimits are applied when no persisted limits exist. A limit of
// zero blocks the capability outright, so defaults are always non-zero.
func DefaultLimits() models.CostLimits {
	return models.CostLimits{Daily: 1.00, Monthly: 10.00, PerRequest: 0.10}
}

// Governor owns the append-only usage log and the configured cost limits.
//
// CheckLimits and TrackUsage are individually mutex-guarded but not atomic
// as a pair: two nearly simultaneous calls can both pass CheckLimits before
// either records usage. The resulting soft overshoot of at most one request
// per caller is an accepted relaxation, not a defect.
type Governor struct {
	mu      sync.Mutex
	pricing Pricing
	limits  models.CostLimits
	records []models.UsageRecord
	backend storage.Store
	now     func() time.Time
}

// NewGovernor loads any persisted usage log and limits from the backend.
// An unreadable log is surfaced rather than discarded; the log is audit
// data.
func NewGovernor(backend storage.Store, pricing Pricing) (*Governor, error) {
	g := &Governor{
		pricing: pricing,
		limits:  DefaultLimits(),
		backend: backend,
		now:     time.Now,
	}

	if blob, ok, err := backend.Get(usageLogKey); err != nil {
		return nil, fmt.Errorf("load usage log: %w", err)
	} else if ok {
		if err := json.Unmarshal([]byte(blob), &g.records); err != nil {
			return nil, fmt.Errorf("decode usage log: %w", err)
		}
	}

	if blob, ok, err := backend.Get(usageLimitKey); err != nil {
		return nil, fmt.Errorf("load cost limits: %w", err)
	} else if ok {
		if err := json.Unmarshal([]byte(blob), &g.limits); err != nil {
			return nil, fmt.Errorf("decode cost limits: %w", err)
		}
	}

	return g, nil
}

// SetClock replaces the time source for deterministic tests.
func (g *Governor) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// TrackUsage computes the cost of a finished call, appends an immutable
// UsageRecord, and persists the full log.
func (g *Governor) TrackUsage(promptTokens, completionTokens int) (models.UsageRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	record := models.UsageRecord{
		ID:               uuid.NewString(),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Cost:             g.pricing.Cost(promptTokens, completionTokens),
		Timestamp:        g.now(),
	}
	g.records = append(g.records, record)

	if err := g.persistLog(); err != nil {
		return record, fmt.Errorf("persist usage log: %w", err)
	}
	return record, nil
}

// DailyUsage aggregates the trailing 24 hours, computed from the current
// time rather than a calendar boundary.
func (g *Governor) DailyUsage() models.UsageTotals {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usageSince(g.now().Add(-dailyWindow))
}

// MonthlyUsage aggregates the trailing 30 days.
func (g *Governor) MonthlyUsage() models.UsageTotals {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.usageSince(g.now().Add(-monthlyWindow))
}

// CheckLimits must return ok=true before any billable generation call is
// dispatched. When a ceiling is reached the reason names it together with
// the current and configured values.
func (g *Governor) CheckLimits() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	daily := g.usageSince(now.Add(-dailyWindow))
	if daily.Cost >= g.limits.Daily {
		return false, fmt.Sprintf("Daily limit reached: $%.4f spent of $%.2f limit",
			daily.Cost, g.limits.Daily)
	}

	monthly := g.usageSince(now.Add(-monthlyWindow))
	if monthly.Cost >= g.limits.Monthly {
		return false, fmt.Sprintf("Monthly limit reached: $%.4f spent of $%.2f limit",
			monthly.Cost, g.limits.Monthly)
	}

	return true, ""
}

// EstimateCost predicts the cost of a prompt of the given length before
// dispatch, assuming roughly four characters per token and a completion
// half the prompt's size.
func (g *Governor) EstimateCost(promptLength int) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	promptTokens := promptLength / charsPerToken
	return g.pricing.Cost(promptTokens, promptTokens/2)
}

// Limits returns the current cost limits.
func (g *Governor) Limits() models.CostLimits {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.limits
}

// UpdateLimits merges non-nil fields into the current limits and persists
// them. Setting a limit to zero blocks the capability; it does not disable
// the check.
func (g *Governor) UpdateLimits(patch models.CostLimitsPatch) (models.CostLimits, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if patch.Daily != nil {
		g.limits.Daily = *patch.Daily
	}
	if patch.Monthly != nil {
		g.limits.Monthly = *patch.Monthly
	}
	if patch.PerRequest != nil {
		g.limits.PerRequest = *patch.PerRequest
	}

	encoded, err := json.Marshal(g.limits)
	if err != nil {
		return g.limits, err
	}
	if err := g.backend.Set(usageLimitKey, string(encoded)); err != nil {
		return g.limits, fmt.Errorf("persist cost limits: %w", err)
	}
	return g.limits, nil
}

// UsageReport is a read-only projection for display. It never mutates
// state.
func (g *Governor) UsageReport() models.UsageReport {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	report := models.UsageReport{
		Daily:    g.usageSince(now.Add(-dailyWindow)),
		Monthly:  g.usageSince(now.Add(-monthlyWindow)),
		Lifetime: g.usageSince(time.Time{}),
		Requests: len(g.records),
		Limits:   g.limits,
	}

	start := len(g.records) - recentHistorySize
	if start < 0 {
		start = 0
	}
	report.Recent = append([]models.UsageRecord(nil), g.records[start:]...)
	return report
}

// UsageStats summarizes the lifetime of the usage log. It never mutates
// state.
func (g *Governor) UsageStats() models.UsageStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := models.UsageStats{TotalRequests: len(g.records)}
	for _, record := range g.records {
		stats.LifetimeTokens += record.TotalTokens
		stats.LifetimeCost += record.Cost
	}
	if len(g.records) > 0 {
		stats.AverageCost = stats.LifetimeCost / float64(len(g.records))
		stats.FirstRequestAt = g.records[0].Timestamp
		stats.MostRecentRequest = g.records[len(g.records)-1].Timestamp
	}
	return stats
}

// usageSince aggregates records newer than cutoff. Callers must hold g.mu.
// The raw log is never pruned here; age filtering applies to aggregates
// only.
func (g *Governor) usageSince(cutoff time.Time) models.UsageTotals {
	totals := models.UsageTotals{}
	for _, record := range g.records {
		if record.Timestamp.After(cutoff) {
			totals.Tokens += record.TotalTokens
			totals.Cost += record.Cost
		}
	}
	return totals
}

// persistLog writes the full usage log. Callers must hold g.mu.
func (g *Governor) persistLog() error {
	encoded, err := json.Marshal(g.records)
	if err != nil {
		return err
	}
	return g.backend.Set(usageLogKey, string(encoded))
}
