package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// fakeStore serves canned runs, emails and posting counts. Any other store
// method panics through the nil embedded interface.
type fakeStore struct {
	store.Store
	runs    []model.Run
	emails  []model.OutreachEmail
	counts  store.PostingCounts
	runsErr error
}

func (f *fakeStore) ListRuns(_ context.Context, _ model.RunFilter) ([]model.Run, error) {
	return f.runs, f.runsErr
}

func (f *fakeStore) ListEmails(_ context.Context, _ int) ([]model.OutreachEmail, error) {
	return f.emails, nil
}

func (f *fakeStore) PostingCounts(_ context.Context) (*store.PostingCounts, error) {
	c := f.counts
	return &c, nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func run(kind model.RunKind, status model.RunStatus, age time.Duration) model.Run {
	return model.Run{Kind: kind, Status: status, StartedAt: fixedNow.Add(-age)}
}

func email(status model.DeliveryStatus, age time.Duration) model.OutreachEmail {
	return model.OutreachEmail{DeliveryStatus: status, CreatedAt: fixedNow.Add(-age)}
}

func newFixedCollector(st store.Store) *Collector {
	c := NewCollector(st)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	st := &fakeStore{
		runs: []model.Run{
			run(model.RunKindIngest, model.RunStatusComplete, time.Hour),
			run(model.RunKindIngest, model.RunStatusFailed, 2*time.Hour),
			run(model.RunKindIngest, model.RunStatusComplete, 3*time.Hour),
			run(model.RunKindIngest, model.RunStatusFailed, 48*time.Hour), // outside window
			run(model.RunKindQualify, model.RunStatusRunning, time.Minute),
			run(model.RunKindOutreach, model.RunStatusComplete, time.Hour),
		},
		emails: []model.OutreachEmail{
			email(model.DeliverySent, time.Hour),
			email(model.DeliverySent, time.Hour),
			email(model.DeliveryFailed, time.Hour),
			email(model.DeliveryPending, time.Minute),
			email(model.DeliveryFailed, 72*time.Hour), // outside window
		},
		counts: store.PostingCounts{Total: 10, Unprocessed: 4, Companies: 3},
	}

	snap, err := newFixedCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)

	ingest := snap.Stages[model.RunKindIngest]
	assert.Equal(t, 3, ingest.Total)
	assert.Equal(t, 2, ingest.Complete)
	assert.Equal(t, 1, ingest.Failed)
	assert.InDelta(t, 1.0/3.0, ingest.FailRate, 1e-9)

	qualify := snap.Stages[model.RunKindQualify]
	assert.Equal(t, 1, qualify.Running)
	assert.Zero(t, qualify.FailRate)

	assert.Equal(t, 1, snap.Stages[model.RunKindOutreach].Complete)

	assert.Equal(t, 2, snap.EmailsSent)
	assert.Equal(t, 1, snap.EmailsFailed)
	assert.Equal(t, 1, snap.EmailsPending)
	assert.InDelta(t, 1.0/3.0, snap.DeliveryFailureRate, 1e-9)

	assert.Equal(t, 4, snap.UnprocessedPostings)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := newFixedCollector(&fakeStore{}).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Len(t, snap.Stages, 3)
	assert.Zero(t, snap.DeliveryFailureRate)
	assert.Zero(t, snap.UnprocessedPostings)
}

func TestCollector_StoreError(t *testing.T) {
	st := &fakeStore{runsErr: errors.New("db down")}

	_, err := newFixedCollector(st).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}
