// Package qualify turns unprocessed postings into leads. Classifier output is
// untrusted: it is parsed into a tagged Result and anything unusable falls
// back to a non-qualifying outcome instead of failing the batch.
package qualify

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// DefaultThreshold is the minimum relevance score for a lead.
const DefaultThreshold = 60

// Passes reports whether q clears the score gate. Both the flag and the
// score are required.
func Passes(q Qualification, threshold int) bool {
	return q.IsQualified && q.RelevanceScore >= threshold
}

// Options configures a Qualifier.
type Options struct {
	Threshold int
	Product   string
}

// Outcome describes what happened to one posting.
type Outcome struct {
	PostingID     int64
	Qualification Qualification
	Qualified     bool
	// Fallback is set when the classifier output was unusable.
	Fallback string
	// ClassifyErr is set when the classifier call itself failed. The posting
	// is still marked processed.
	ClassifyErr error
	LeadID      int64
	LeadCreated bool
}

// Qualifier runs the qualification gate for single postings.
type Qualifier struct {
	store      store.Store
	classifier Classifier
	opts       Options
}

// New creates a Qualifier.
func New(st store.Store, classifier Classifier, opts Options) *Qualifier {
	return &Qualifier{store: st, classifier: classifier, opts: opts}
}

// Qualify classifies posting, creates a lead when the gate passes and marks
// the posting processed. Classifier and parse problems are folded into the
// Outcome; only storage errors are returned.
func (q *Qualifier) Qualify(ctx context.Context, posting model.JobPosting) (Outcome, error) {
	out := Outcome{PostingID: posting.ID}
	log := zap.L().With(zap.Int64("posting_id", posting.ID), zap.String("company", posting.CompanyName))

	text, err := q.classifier.Classify(ctx, posting, q.opts.Product)
	var res Result
	if err != nil {
		out.ClassifyErr = err
		res = Result{Fallback: FallbackReason + ": classifier error"}
		log.Warn("qualify: classifier failed", zap.Error(err))
	} else {
		res = ParseQualification(text)
		if res.IsFallback() {
			log.Warn("qualify: unusable classifier output", zap.String("fallback", res.Fallback))
		}
	}

	out.Qualification = res.Qualification()
	out.Fallback = res.Fallback
	out.Qualified = Passes(out.Qualification, q.opts.Threshold)

	if out.Qualified {
		id, created, err := q.store.CreateLead(ctx, model.NewLead{
			CompanyID:         posting.CompanyID,
			JobPostingID:      posting.ID,
			RelevanceScore:    out.Qualification.RelevanceScore,
			AIAnalysis:        text,
			Reason:            out.Qualification.Reason,
			ContactRole:       out.Qualification.TargetContactRole,
			CompanyPainPoints: out.Qualification.CompanyPainPoints,
		})
		if err != nil {
			return out, eris.Wrapf(err, "qualify: create lead for posting %d", posting.ID)
		}
		out.LeadID, out.LeadCreated = id, created
	}

	if err := q.store.MarkPostingProcessed(ctx, posting.ID); err != nil {
		return out, eris.Wrapf(err, "qualify: mark posting %d processed", posting.ID)
	}

	log.Debug("qualify: posting processed",
		zap.Int("score", out.Qualification.RelevanceScore),
		zap.Bool("qualified", out.Qualified),
	)
	return out, nil
}
