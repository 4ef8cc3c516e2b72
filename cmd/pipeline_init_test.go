package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/ingest"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	anthropicmocks "github.com/sells-group/leadgen-cli/pkg/anthropic/mocks"
)

// withConfig installs a minimal sqlite-backed config for the test.
func withConfig(t *testing.T) *config.Config {
	t.Helper()
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = &config.Config{
		Store:     config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "leadgen.db")},
		Anthropic: config.AnthropicConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 1024, TimeoutSecs: 60},
		Ingest: config.IngestConfig{
			BaseURL: "http://127.0.0.1:1", MaxJobsPerRun: 10, MaxRetries: 1, TimeoutSecs: 1,
		},
		Qualify:  config.QualifyConfig{MinRelevanceScore: 60, MaxInputChars: 2000, Limit: 10},
		Outreach: config.OutreachConfig{DryRun: true, Limit: 10, AdvanceOnDryRun: true},
		SMTP:     config.SMTPConfig{Host: "127.0.0.1", Port: 2525},
	}
	return cfg
}

func TestInitStore_Migrates(t *testing.T) {
	withConfig(t)
	ctx := context.Background()

	st, err := initStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	counts, err := st.PostingCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Total)
}

func TestInitPipeline_WithoutLLM(t *testing.T) {
	withConfig(t)
	ctx := context.Background()

	env, err := initPipeline(ctx, envOptions{})
	require.NoError(t, err)
	defer env.Close()

	require.NotNil(t, env.Coordinator)
	require.NotNil(t, env.Metrics)

	_, _, err = env.Coordinator.Qualify(ctx, pipeline.QualifyOptions{})
	assert.ErrorContains(t, err, "requires a classifier")
	_, _, err = env.Coordinator.Outreach(ctx, pipeline.OutreachOptions{})
	assert.ErrorContains(t, err, "requires a dispatcher")
}

func TestInitPipeline_RequiredIntegrations(t *testing.T) {
	c := withConfig(t)
	ctx := context.Background()

	_, err := initPipeline(ctx, envOptions{RequireLLM: true})
	assert.ErrorContains(t, err, "anthropic.key")

	c.Anthropic.Key = "sk-test"
	c.Product.Description = "Deploy previews for every pull request"
	_, err = initPipeline(ctx, envOptions{RequireLLM: true, RequireSMTP: true})
	assert.ErrorContains(t, err, "smtp.username")

	c.SMTP.Username = "me@example.com"
	c.SMTP.Password = "app-password"
	env, err := initPipeline(ctx, envOptions{RequireLLM: true, RequireSMTP: true})
	require.NoError(t, err)
	env.Close()
}

func TestInitKeywords(t *testing.T) {
	c := withConfig(t)
	ctx := context.Background()

	src, err := initKeywords(nil)
	require.NoError(t, err)
	assert.Equal(t, ingest.DefaultBuyerRoles, src.Keywords(ctx))

	// AI keywords without a client fall back to the defaults.
	c.Ingest.AIKeywords = true
	src, err = initKeywords(nil)
	require.NoError(t, err)
	assert.IsType(t, pipeline.StaticKeywords{}, src)

	src, err = initKeywords(anthropicmocks.NewMockClient(t))
	require.NoError(t, err)
	assert.IsType(t, &ingest.KeywordGenerator{}, src)

	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- head of platform\n- staff engineer\n"), 0o644))
	c.Ingest.KeywordsFile = path
	src, err = initKeywords(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"head of platform", "staff engineer"}, src.Keywords(ctx))

	c.Ingest.KeywordsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = initKeywords(nil)
	assert.Error(t, err)
}
