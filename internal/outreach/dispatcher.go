// Package outreach drafts, renders and delivers emails to qualified leads and
// records every attempt.
package outreach

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// ErrNotQualified is returned by SendOne for leads not in qualified status.
var ErrNotQualified = eris.New("outreach: lead is not qualified")

// ErrNoTransport is returned when a real send is requested without a
// configured Transport.
var ErrNoTransport = eris.New("outreach: no mail transport configured")

// RunSummary counts lead outcomes for one dispatch run.
type RunSummary = model.OutreachSummary

// Options controls a dispatch run.
type Options struct {
	DryRun bool
	// Limit caps the number of leads attempted. Zero means no cap.
	Limit int
	// AdvanceOnDryRun moves leads to emailed after a dry-run send.
	AdvanceOnDryRun bool
	RunID           string
}

// Result is the outcome for a single lead.
type Result int

const (
	ResultSkipped Result = iota
	ResultSent
	ResultFailed
)

func (r Result) String() string {
	switch r {
	case ResultSent:
		return "sent"
	case ResultFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Observer is notified of each lead outcome. Metrics hook in here.
type Observer func(r Result)

// Dispatcher runs the outreach loop.
type Dispatcher struct {
	store     store.Store
	drafter   Drafter
	renderer  *Renderer
	resolver  RecipientResolver
	transport Transport
	breaker   *resilience.CircuitBreaker
	sender    string
	from      string
	observe   Observer
	now       func() time.Time
}

// Deps holds the Dispatcher collaborators.
type Deps struct {
	Store     store.Store
	Drafter   Drafter
	Renderer  *Renderer
	Resolver  RecipientResolver
	Transport Transport
	Breaker   *resilience.CircuitBreaker
	// SenderName signs the HTML body; From is the envelope and header address.
	SenderName string
	From       string
	Observer   Observer
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(d Deps) *Dispatcher {
	if d.Renderer == nil {
		d.Renderer = NewRenderer()
	}
	if d.Breaker == nil {
		cfg := resilience.DefaultCircuitBreakerConfig()
		cfg.OnStateChange = resilience.StateLogger("smtp")
		d.Breaker = resilience.NewCircuitBreaker(cfg)
	}
	return &Dispatcher{
		store:     d.Store,
		drafter:   d.Drafter,
		renderer:  d.Renderer,
		resolver:  d.Resolver,
		transport: d.Transport,
		breaker:   d.Breaker,
		sender:    d.SenderName,
		from:      d.From,
		observe:   d.Observer,
		now:       time.Now,
	}
}

// CanSend reports ErrNoTransport when a real send is requested without a
// Transport. Dry runs never need one.
func (d *Dispatcher) CanSend(dryRun bool) error {
	if !dryRun && d.transport == nil {
		return ErrNoTransport
	}
	return nil
}

// Run dispatches leads oldest first. Duplicate lead IDs are attempted once.
// Per-lead failures are counted, never returned; the error is non-nil only
// when ctx is cancelled, alongside the partial summary, or when a real send
// has no Transport.
func (d *Dispatcher) Run(ctx context.Context, leads []model.Lead, opts Options) (RunSummary, error) {
	var sum RunSummary
	if err := d.CanSend(opts.DryRun); err != nil {
		return sum, err
	}

	ordered := dedupeOldestFirst(leads)
	for _, lead := range ordered {
		if opts.Limit > 0 && sum.Attempted >= opts.Limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return sum, eris.Wrap(err, "outreach: run cancelled")
		}

		r := d.dispatch(ctx, lead.ID, opts)
		sum.Attempted++
		switch r {
		case ResultSent:
			sum.Sent++
		case ResultFailed:
			sum.Failed++
		default:
			sum.Skipped++
		}
		if d.observe != nil {
			d.observe(r)
		}
	}

	zap.L().Info("outreach: run complete",
		zap.String("run_id", opts.RunID),
		zap.Bool("dry_run", opts.DryRun),
		zap.Int("attempted", sum.Attempted),
		zap.Int("sent", sum.Sent),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

// SendOne dispatches a single lead, which must be qualified.
func (d *Dispatcher) SendOne(ctx context.Context, leadID int64, opts Options) (Result, error) {
	if !opts.DryRun && d.transport == nil {
		return ResultSkipped, ErrNoTransport
	}
	lead, err := d.store.GetLead(ctx, leadID)
	if err != nil {
		return ResultFailed, eris.Wrapf(err, "outreach: load lead %d", leadID)
	}
	if lead.Status != model.LeadStatusQualified {
		return ResultSkipped, eris.Wrapf(ErrNotQualified, "lead %d is %s", leadID, lead.Status)
	}
	r := d.dispatch(ctx, leadID, opts)
	if d.observe != nil {
		d.observe(r)
	}
	return r, nil
}

func dedupeOldestFirst(leads []model.Lead) []model.Lead {
	seen := make(map[int64]bool, len(leads))
	out := make([]model.Lead, 0, len(leads))
	for _, l := range leads {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, leadID int64, opts Options) Result {
	log := zap.L().With(zap.Int64("lead_id", leadID), zap.String("run_id", opts.RunID))

	// Re-read so a lead advanced by an earlier run or a manual override is
	// not emailed again.
	lead, err := d.store.GetLead(ctx, leadID)
	if err != nil {
		log.Error("outreach: load lead", zap.Error(err))
		return ResultFailed
	}
	if lead.Status != model.LeadStatusQualified {
		log.Info("outreach: lead no longer qualified, skipping", zap.String("status", string(lead.Status)))
		return ResultSkipped
	}
	log = log.With(zap.String("company", lead.CompanyName))

	to, ok := d.resolver.Resolve(*lead, opts.DryRun)
	if !ok {
		log.Warn("outreach: no recipient address, skipping")
		return ResultSkipped
	}

	draft, err := d.drafter.Draft(ctx, *lead)
	if err != nil {
		log.Error("outreach: draft failed", zap.Error(err))
		d.recordFailed(ctx, log, model.OutreachEmail{
			LeadID:       lead.ID,
			RunID:        opts.RunID,
			ToAddress:    to,
			ErrorMessage: "draft failed: " + err.Error(),
		})
		return ResultFailed
	}

	rendered, err := d.renderer.Render(draft, d.sender)
	if err != nil {
		log.Error("outreach: render failed", zap.Error(err))
		d.recordFailed(ctx, log, model.OutreachEmail{
			LeadID:       lead.ID,
			RunID:        opts.RunID,
			ToAddress:    to,
			Subject:      draft.Subject,
			Body:         draft.Body,
			ErrorMessage: "render failed: " + err.Error(),
		})
		return ResultFailed
	}

	emailID, err := d.store.LogOutreachAttempt(ctx, model.OutreachEmail{
		LeadID:         lead.ID,
		RunID:          opts.RunID,
		ToAddress:      to,
		Subject:        rendered.Subject,
		Body:           rendered.Plain,
		DeliveryStatus: model.DeliveryPending,
	})
	if err != nil {
		log.Error("outreach: record pending email", zap.Error(err))
		return ResultFailed
	}
	log = log.With(zap.Int64("email_id", emailID))

	if opts.DryRun {
		log.Info("outreach: dry run, email recorded as sent", zap.String("to", to), zap.String("subject", rendered.Subject))
		sentAt := d.now().UTC()
		if err := d.store.UpdateDeliveryStatus(ctx, emailID, model.DeliverySent, &sentAt, ""); err != nil {
			log.Error("outreach: mark dry-run email sent", zap.Error(err))
			return ResultFailed
		}
		if opts.AdvanceOnDryRun {
			d.advance(ctx, lead.ID, log)
		}
		return ResultSent
	}

	sendErr := d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.transport.Send(ctx, Message{
			From:     d.from,
			FromName: d.sender,
			To:       to,
			Subject:  rendered.Subject,
			HTML:     rendered.HTML,
			Plain:    rendered.Plain,
		})
	})
	if sendErr != nil {
		log.Error("outreach: send failed", zap.String("to", to), zap.Error(sendErr))
		if err := d.store.UpdateDeliveryStatus(ctx, emailID, model.DeliveryFailed, nil, sendErr.Error()); err != nil {
			log.Error("outreach: mark email failed", zap.Error(err))
		}
		return ResultFailed
	}

	sentAt := d.now().UTC()
	if err := d.store.UpdateDeliveryStatus(ctx, emailID, model.DeliverySent, &sentAt, ""); err != nil {
		// Delivered regardless; advance so the lead is not emailed twice.
		log.Error("outreach: mark email sent", zap.Error(err))
	}
	d.advance(ctx, lead.ID, log)
	log.Info("outreach: email sent", zap.String("to", to))
	return ResultSent
}

// recordFailed writes a failed email row for an attempt that never reached
// the transport.
func (d *Dispatcher) recordFailed(ctx context.Context, log *zap.Logger, e model.OutreachEmail) {
	e.DeliveryStatus = model.DeliveryFailed
	if _, err := d.store.LogOutreachAttempt(ctx, e); err != nil {
		log.Error("outreach: record failed attempt", zap.Error(err))
	}
}

func (d *Dispatcher) advance(ctx context.Context, leadID int64, log *zap.Logger) {
	if err := d.store.UpdateLeadStatus(ctx, leadID, model.LeadStatusQualified, model.LeadStatusEmailed); err != nil {
		log.Error("outreach: advance lead to emailed", zap.Error(err))
	}
}
