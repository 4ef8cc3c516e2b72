// Package monitoring evaluates recent pipeline health and raises alerts.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// scanLimit caps how many recent runs and emails one collection reads.
const scanLimit = 1000

// StageStats counts finished runs of one stage.
type StageStats struct {
	Total    int     `json:"total"`
	Complete int     `json:"complete"`
	Failed   int     `json:"failed"`
	Running  int     `json:"running"`
	FailRate float64 `json:"fail_rate"`
}

// MetricsSnapshot holds a point-in-time view of pipeline health.
type MetricsSnapshot struct {
	Stages map[model.RunKind]*StageStats `json:"stages"`

	EmailsSent          int     `json:"emails_sent"`
	EmailsFailed        int     `json:"emails_failed"`
	EmailsPending       int     `json:"emails_pending"`
	DeliveryFailureRate float64 `json:"delivery_failure_rate"`

	UnprocessedPostings int `json:"unprocessed_postings"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers a MetricsSnapshot from the store.
type Collector struct {
	store store.Store
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot of runs and emails started within the lookback
// window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	snap := &MetricsSnapshot{
		Stages:        map[model.RunKind]*StageStats{},
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	for _, kind := range []model.RunKind{model.RunKindIngest, model.RunKindQualify, model.RunKindOutreach} {
		snap.Stages[kind] = &StageStats{}
	}

	runs, err := c.store.ListRuns(ctx, model.RunFilter{Limit: scanLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		st, ok := snap.Stages[r.Kind]
		if !ok {
			continue
		}
		st.Total++
		switch r.Status {
		case model.RunStatusComplete:
			st.Complete++
		case model.RunStatusFailed:
			st.Failed++
		case model.RunStatusRunning:
			st.Running++
		}
	}
	for _, st := range snap.Stages {
		if finished := st.Complete + st.Failed; finished > 0 {
			st.FailRate = float64(st.Failed) / float64(finished)
		}
	}

	emails, err := c.store.ListEmails(ctx, scanLimit)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list emails")
	}
	for _, e := range emails {
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		switch e.DeliveryStatus {
		case model.DeliverySent:
			snap.EmailsSent++
		case model.DeliveryFailed:
			snap.EmailsFailed++
		case model.DeliveryPending:
			snap.EmailsPending++
		}
	}
	if finished := snap.EmailsSent + snap.EmailsFailed; finished > 0 {
		snap.DeliveryFailureRate = float64(snap.EmailsFailed) / float64(finished)
	}

	counts, err := c.store.PostingCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: posting counts")
	}
	snap.UnprocessedPostings = counts.Unprocessed

	return snap, nil
}
