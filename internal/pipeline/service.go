package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// Service exposes lead and run queries plus manual lead transitions.
type Service struct {
	store store.Store
}

// NewService creates a Service backed by st.
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// TransitionLead moves a lead to status to. Transitions outside the lead
// lifecycle fail with an error matching model.ErrInvalidTransition, and a
// concurrent change surfaces as store.ErrStatusConflict.
func (s *Service) TransitionLead(ctx context.Context, id int64, to model.LeadStatus) (*model.Lead, error) {
	lead, err := s.store.GetLead(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load lead %d", id)
	}
	if err := model.ValidateTransition(lead.Status, to); err != nil {
		return nil, err
	}
	if err := s.store.UpdateLeadStatus(ctx, id, lead.Status, to); err != nil {
		return nil, eris.Wrapf(err, "pipeline: transition lead %d", id)
	}

	zap.L().Info("pipeline: lead status changed",
		zap.Int64("lead_id", id),
		zap.String("from", string(lead.Status)),
		zap.String("to", string(to)),
	)

	lead.Status = to
	return lead, nil
}

// IngestionStatus reports the posting backlog and the most recent run of
// each stage.
type IngestionStatus struct {
	Postings *store.PostingCounts        `json:"postings"`
	LastRuns map[model.RunKind]model.Run `json:"last_runs"`
}

// Status returns the current IngestionStatus.
func (s *Service) Status(ctx context.Context) (*IngestionStatus, error) {
	counts, err := s.store.PostingCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: posting counts")
	}

	out := &IngestionStatus{Postings: counts, LastRuns: map[model.RunKind]model.Run{}}
	for _, kind := range []model.RunKind{model.RunKindIngest, model.RunKindQualify, model.RunKindOutreach} {
		runs, err := s.store.ListRuns(ctx, model.RunFilter{Kind: kind, Limit: 1})
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: latest %s run", kind)
		}
		if len(runs) > 0 {
			out.LastRuns[kind] = runs[0]
		}
	}
	return out, nil
}
