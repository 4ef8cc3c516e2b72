package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/ingest"
	"github.com/sells-group/leadgen-cli/internal/metrics"
	"github.com/sells-group/leadgen-cli/internal/outreach"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/qualify"
	"github.com/sells-group/leadgen-cli/internal/resilience"
	"github.com/sells-group/leadgen-cli/internal/store"
	anthropicpkg "github.com/sells-group/leadgen-cli/pkg/anthropic"
	"github.com/sells-group/leadgen-cli/pkg/remoteok"
)

// envOptions states which optional integrations a command cannot run
// without.
type envOptions struct {
	RequireLLM  bool
	RequireSMTP bool
}

// pipelineEnv holds the store, metrics and pipeline built from cfg.
type pipelineEnv struct {
	Store       store.Store
	Metrics     *metrics.Metrics
	Coordinator *pipeline.Coordinator
	Service     *pipeline.Service
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initPipeline builds every pipeline collaborator from cfg. Integrations
// that are not configured and not required are left out; the stages that
// need them then fail with a clear error. Callers should defer env.Close().
func initPipeline(ctx context.Context, opts envOptions) (*pipelineEnv, error) {
	var llm anthropicpkg.Client
	if err := cfg.RequireLLM(); err != nil {
		if opts.RequireLLM {
			return nil, err
		}
		zap.L().Debug("anthropic not configured, qualify and outreach disabled", zap.Error(err))
	} else {
		llm = anthropicpkg.NewClient(cfg.Anthropic.Key,
			anthropicpkg.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second),
		)
	}

	var transport outreach.Transport
	if err := cfg.RequireSMTP(); err != nil {
		if opts.RequireSMTP {
			return nil, err
		}
		zap.L().Debug("smtp not configured, only dry-run outreach available")
	} else {
		transport = outreach.NewSMTPTransport(outreach.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			Timeout:  time.Duration(cfg.SMTP.TimeoutSecs) * time.Second,
		})
	}

	keywords, err := initKeywords(llm)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	m := metrics.New(nil)
	deps := pipeline.Deps{
		Store:      st,
		Fetcher:    initFetcher(),
		Normalizer: ingest.NewNormalizer(cfg.Ingest.DescriptionMaxChars),
		Keywords:   keywords,
		Metrics:    m,
	}
	if llm != nil {
		deps.Classifier = qualify.NewAnthropicClassifier(llm, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Qualify.MaxInputChars)
		deps.Dispatcher = initDispatcher(st, llm, transport, m)
	}

	coord := pipeline.NewCoordinator(deps, pipeline.Defaults{
		IngestLimit:     cfg.Ingest.MaxJobsPerRun,
		QualifyLimit:    cfg.Qualify.Limit,
		Threshold:       cfg.Qualify.MinRelevanceScore,
		Product:         cfg.Product.Description,
		OutreachLimit:   cfg.Outreach.Limit,
		DryRun:          cfg.Outreach.DryRun,
		AdvanceOnDryRun: cfg.Outreach.AdvanceOnDryRun,
	})

	return &pipelineEnv{
		Store:       st,
		Metrics:     m,
		Coordinator: coord,
		Service:     pipeline.NewService(st),
	}, nil
}

func initFetcher() remoteok.Client {
	return remoteok.NewClient(
		remoteok.WithBaseURL(cfg.Ingest.BaseURL),
		remoteok.WithUserAgent(cfg.Ingest.UserAgent),
		remoteok.WithTags(cfg.Ingest.Tags),
		remoteok.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Ingest.TimeoutSecs) * time.Second}),
		remoteok.WithRetry(resilience.FromRetryConfig(cfg.Ingest.MaxRetries, cfg.Ingest.InitialBackoffMs, cfg.Ingest.MaxBackoffMs)),
	)
}

// initKeywords picks the ingest keyword source: an explicit file wins, then
// LLM-generated keywords when enabled, then the built-in buyer roles.
func initKeywords(llm anthropicpkg.Client) (pipeline.KeywordSource, error) {
	if cfg.Ingest.KeywordsFile != "" {
		kws, err := ingest.LoadKeywordsFile(cfg.Ingest.KeywordsFile)
		if err != nil {
			return nil, err
		}
		zap.L().Info("loaded ingest keywords", zap.String("file", cfg.Ingest.KeywordsFile), zap.Int("count", len(kws)))
		return pipeline.StaticKeywords(kws), nil
	}
	if cfg.Ingest.AIKeywords && llm != nil {
		return ingest.NewKeywordGenerator(llm, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Product.Description), nil
	}
	return pipeline.StaticKeywords(ingest.DefaultBuyerRoles), nil
}

func initDispatcher(st store.Store, llm anthropicpkg.Client, transport outreach.Transport, m *metrics.Metrics) *outreach.Dispatcher {
	cbCfg := resilience.FromCircuitConfig(cfg.Outreach.CircuitFailureThreshold, cfg.Outreach.CircuitResetSecs)
	logState := resilience.StateLogger("smtp")
	cbCfg.OnStateChange = func(from, to resilience.CircuitState) {
		logState(from, to)
		m.SetCircuitOpen(to == resilience.CircuitOpen)
	}

	return outreach.NewDispatcher(outreach.Deps{
		Store:   st,
		Drafter: outreach.NewLLMDrafter(llm, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Product.Description),
		Resolver: outreach.RecipientResolver{
			Override:      cfg.Outreach.RecipientOverride,
			Pattern:       cfg.Outreach.RecipientPattern,
			DryRunAddress: cfg.Sender(),
		},
		Transport:  transport,
		Breaker:    resilience.NewCircuitBreaker(cbCfg),
		SenderName: cfg.Product.SenderName,
		From:       cfg.Sender(),
		Observer: func(r outreach.Result) {
			m.Item(metrics.StageOutreach, r.String())
		},
	})
}
