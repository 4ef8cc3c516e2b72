package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

func qualifiedLead(t *testing.T, st store.Store) int64 {
	t.Helper()
	seedPostings(t, st, 1)
	cl := &mockClassifier{}
	cl.On("Classify", mock.Anything, mock.Anything, mock.Anything).Return(verdict(90), nil)
	_, _, err := newTestCoordinator(st, Deps{Classifier: cl}).Qualify(context.Background(), QualifyOptions{})
	require.NoError(t, err)

	leads, err := st.GetQualifiedLeads(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	return leads[0].ID
}

func TestService_TransitionLead(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	id := qualifiedLead(t, st)
	svc := NewService(st)

	_, err := svc.TransitionLead(ctx, id, model.LeadStatusReplied)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidTransition))

	lead, err := svc.TransitionLead(ctx, id, model.LeadStatusEmailed)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusEmailed, lead.Status)

	lead, err = svc.TransitionLead(ctx, id, model.LeadStatusReplied)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusReplied, lead.Status)

	got, err := st.GetLead(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.LeadStatusReplied, got.Status)

	// Any status may be rejected.
	_, err = svc.TransitionLead(ctx, id, model.LeadStatusRejected)
	assert.NoError(t, err)
}

func TestService_TransitionLeadNotFound(t *testing.T) {
	_, err := NewService(newTestStore(t)).TransitionLead(context.Background(), 999, model.LeadStatusRejected)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

type conflictStore struct {
	store.Store
}

func (conflictStore) UpdateLeadStatus(context.Context, int64, model.LeadStatus, model.LeadStatus) error {
	return store.ErrStatusConflict
}

func TestService_TransitionLeadConflict(t *testing.T) {
	st := newTestStore(t)
	id := qualifiedLead(t, st)

	_, err := NewService(conflictStore{st}).TransitionLead(context.Background(), id, model.LeadStatusEmailed)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrStatusConflict))
}

func TestService_Status(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	ingestThree(t, st)

	status, err := NewService(st).Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Postings.Total)
	assert.Equal(t, 3, status.Postings.Unprocessed)
	require.Contains(t, status.LastRuns, model.RunKindIngest)
	assert.Equal(t, model.RunStatusComplete, status.LastRuns[model.RunKindIngest].Status)
	assert.NotContains(t, status.LastRuns, model.RunKindOutreach)
}
