// Package pipeline sequences the ingest, qualify and outreach stages. Each
// stage is a sequential loop with per-item failure isolation and an audited
// run record.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/ingest"
	"github.com/sells-group/leadgen-cli/internal/metrics"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/outreach"
	"github.com/sells-group/leadgen-cli/internal/qualify"
	"github.com/sells-group/leadgen-cli/internal/store"
	"github.com/sells-group/leadgen-cli/pkg/remoteok"
)

// KeywordSource supplies the ingest keyword list for a run.
type KeywordSource interface {
	Keywords(ctx context.Context) []string
}

// StaticKeywords is a fixed keyword list.
type StaticKeywords []string

// Keywords implements KeywordSource.
func (s StaticKeywords) Keywords(context.Context) []string { return s }

// Deps holds the Coordinator collaborators. Fetcher, Classifier and
// Dispatcher may be nil when the matching stage is not used.
type Deps struct {
	Store      store.Store
	Fetcher    remoteok.Client
	Normalizer *ingest.Normalizer
	Keywords   KeywordSource
	Classifier qualify.Classifier
	Dispatcher *outreach.Dispatcher
	Metrics    *metrics.Metrics
}

// Defaults are the configured values used when per-run options are zero.
type Defaults struct {
	IngestLimit     int
	QualifyLimit    int
	Threshold       int
	Product         string
	OutreachLimit   int
	DryRun          bool
	AdvanceOnDryRun bool
}

// IngestOptions controls one ingestion run.
type IngestOptions struct {
	Limit int
}

// QualifyOptions controls one qualification run. A nil Threshold uses the
// configured default; 0 is a valid threshold.
type QualifyOptions struct {
	Limit     int
	Threshold *int
}

// OutreachOptions controls one outreach run. A nil DryRun uses the
// configured default.
type OutreachOptions struct {
	Limit  int
	DryRun *bool
}

// Coordinator runs pipeline stages against a Store.
type Coordinator struct {
	deps     Deps
	defaults Defaults
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(deps Deps, defaults Defaults) *Coordinator {
	if deps.Normalizer == nil {
		deps.Normalizer = ingest.NewNormalizer(0)
	}
	if deps.Keywords == nil {
		deps.Keywords = StaticKeywords(ingest.DefaultBuyerRoles)
	}
	return &Coordinator{deps: deps, defaults: defaults}
}

// trackRun wraps a stage in a run audit row, metrics and a summary log.
func (c *Coordinator) trackRun(ctx context.Context, kind model.RunKind, fn func(runID string) (any, error)) (string, error) {
	log := zap.L().With(zap.String("stage", string(kind)))

	run, err := c.deps.Store.CreateRun(ctx, kind)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: create %s run", kind)
	}
	log = log.With(zap.String("run_id", run.ID))
	log.Info("pipeline: run started")

	start := time.Now()
	summary, fnErr := fn(run.ID)
	elapsed := time.Since(start)

	status := model.RunStatusComplete
	errMsg := ""
	if fnErr != nil {
		status = model.RunStatusFailed
		errMsg = fnErr.Error()
	}

	// The run row must be closed even when the stage was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	if err := c.deps.Store.FinishRun(finishCtx, run.ID, status, summary, errMsg); err != nil {
		log.Warn("pipeline: failed to finish run", zap.Error(err))
	}
	c.deps.Metrics.Run(string(kind), string(status), elapsed)

	if fnErr != nil {
		log.Error("pipeline: run failed", zap.Any("summary", summary), zap.Duration("elapsed", elapsed), zap.Error(fnErr))
		return run.ID, fnErr
	}
	log.Info("pipeline: run complete", zap.Any("summary", summary), zap.Duration("elapsed", elapsed))
	return run.ID, nil
}

// isolate runs fn and converts a panic into an error so one item cannot
// abort the batch.
func isolate(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: item panicked: %v", r)
		}
	}()
	return fn()
}

// Ingest fetches, normalizes, filters and admits postings.
func (c *Coordinator) Ingest(ctx context.Context, opts IngestOptions) (model.IngestSummary, string, error) {
	if c.deps.Fetcher == nil {
		return model.IngestSummary{}, "", eris.New("pipeline: ingest requires a fetcher")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = c.defaults.IngestLimit
	}

	var sum model.IngestSummary
	runID, err := c.trackRun(ctx, model.RunKindIngest, func(string) (any, error) {
		jobs, err := c.deps.Fetcher.FetchPostings(ctx, limit)
		if err != nil {
			return &sum, eris.Wrap(err, "pipeline: fetch postings")
		}
		sum.Fetched = len(jobs)

		filter := ingest.NewKeywordFilter(c.deps.Keywords.Keywords(ctx))
		gate := ingest.NewGate(c.deps.Store)

		for _, raw := range jobs {
			if err := ctx.Err(); err != nil {
				return &sum, eris.Wrap(err, "pipeline: ingest cancelled")
			}

			job, err := c.deps.Normalizer.Normalize(raw)
			if err != nil {
				zap.L().Debug("pipeline: dropping malformed posting", zap.String("external_id", string(raw.ID)), zap.Error(err))
				c.deps.Metrics.Item(metrics.StageIngest, "malformed")
				continue
			}
			sum.Normalized++

			if !filter.Match(job) {
				c.deps.Metrics.Item(metrics.StageIngest, "filtered")
				continue
			}
			sum.PassedFilter++

			var adm ingest.Admission
			err = isolate(func() error {
				var admitErr error
				adm, admitErr = gate.Admit(ctx, job)
				return admitErr
			})
			switch {
			case err != nil:
				sum.Failed++
				c.deps.Metrics.Item(metrics.StageIngest, "failed")
				zap.L().Error("pipeline: admit posting",
					zap.String("external_id", job.ExternalID),
					zap.String("company", job.Company),
					zap.Error(err),
				)
			case adm.Kind == ingest.AdmissionDuplicate:
				sum.SkippedDuplicates++
				c.deps.Metrics.Item(metrics.StageIngest, "duplicate")
			default:
				sum.Saved++
				c.deps.Metrics.Item(metrics.StageIngest, "saved")
			}
		}
		return &sum, nil
	})
	return sum, runID, err
}

// Qualify runs the qualification gate over unprocessed postings.
func (c *Coordinator) Qualify(ctx context.Context, opts QualifyOptions) (model.QualifySummary, string, error) {
	if c.deps.Classifier == nil {
		return model.QualifySummary{}, "", eris.New("pipeline: qualify requires a classifier")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = c.defaults.QualifyLimit
	}
	threshold := c.defaults.Threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}
	if threshold < 0 || threshold > 100 {
		return model.QualifySummary{}, "", eris.Errorf("pipeline: threshold %d outside 0-100", threshold)
	}

	q := qualify.New(c.deps.Store, c.deps.Classifier, qualify.Options{Threshold: threshold, Product: c.defaults.Product})

	var sum model.QualifySummary
	runID, err := c.trackRun(ctx, model.RunKindQualify, func(string) (any, error) {
		postings, err := c.deps.Store.GetUnprocessedPostings(ctx, limit)
		if err != nil {
			return &sum, eris.Wrap(err, "pipeline: load unprocessed postings")
		}

		for _, p := range postings {
			if err := ctx.Err(); err != nil {
				return &sum, eris.Wrap(err, "pipeline: qualify cancelled")
			}
			sum.Processed++

			var out qualify.Outcome
			err := isolate(func() error {
				var qErr error
				out, qErr = q.Qualify(ctx, p)
				return qErr
			})
			switch {
			case err != nil:
				sum.Failed++
				c.deps.Metrics.Item(metrics.StageQualify, "failed")
				zap.L().Error("pipeline: qualify posting", zap.Int64("posting_id", p.ID), zap.Error(err))
			case out.ClassifyErr != nil:
				sum.Failed++
				c.deps.Metrics.Item(metrics.StageQualify, "failed")
			case out.Qualified:
				sum.Qualified++
				c.deps.Metrics.Item(metrics.StageQualify, "qualified")
			default:
				sum.Rejected++
				c.deps.Metrics.Item(metrics.StageQualify, "rejected")
			}
		}
		return &sum, nil
	})
	return sum, runID, err
}

func (c *Coordinator) outreachOptions(opts OutreachOptions, runID string) outreach.Options {
	dryRun := c.defaults.DryRun
	if opts.DryRun != nil {
		dryRun = *opts.DryRun
	}
	return outreach.Options{
		DryRun:          dryRun,
		Limit:           opts.Limit,
		AdvanceOnDryRun: c.defaults.AdvanceOnDryRun,
		RunID:           runID,
	}
}

// Outreach dispatches emails to qualified leads.
func (c *Coordinator) Outreach(ctx context.Context, opts OutreachOptions) (outreach.RunSummary, string, error) {
	if c.deps.Dispatcher == nil {
		return outreach.RunSummary{}, "", eris.New("pipeline: outreach requires a dispatcher")
	}
	if opts.Limit <= 0 {
		opts.Limit = c.defaults.OutreachLimit
	}
	// A missing transport is a configuration problem, not a failed run.
	if err := c.deps.Dispatcher.CanSend(c.outreachOptions(opts, "").DryRun); err != nil {
		return outreach.RunSummary{}, "", err
	}

	var sum outreach.RunSummary
	runID, err := c.trackRun(ctx, model.RunKindOutreach, func(runID string) (any, error) {
		leads, err := c.deps.Store.GetQualifiedLeads(ctx, opts.Limit)
		if err != nil {
			return &sum, eris.Wrap(err, "pipeline: load qualified leads")
		}
		sum, err = c.deps.Dispatcher.Run(ctx, leads, c.outreachOptions(opts, runID))
		return &sum, err
	})
	return sum, runID, err
}

// SendOne dispatches a single lead outside a batch run.
func (c *Coordinator) SendOne(ctx context.Context, leadID int64, dryRun *bool) (outreach.Result, error) {
	if c.deps.Dispatcher == nil {
		return outreach.ResultFailed, eris.New("pipeline: outreach requires a dispatcher")
	}
	runID := fmt.Sprintf("single-%d-%d", leadID, time.Now().Unix())
	return c.deps.Dispatcher.SendOne(ctx, leadID, c.outreachOptions(OutreachOptions{DryRun: dryRun}, runID))
}
