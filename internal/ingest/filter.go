package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadgen-cli/internal/qualify"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// DefaultBuyerRoles are the role keywords used when no list is configured or
// keyword generation fails.
var DefaultBuyerRoles = []string{
	"cto", "vp engineering", "head of engineering", "engineering manager",
	"director of engineering", "chief technology officer",
	"founder", "co-founder", "ceo",
	"vp product", "head of product", "product manager", "product lead",
	"vp operations", "head of operations", "operations manager",
	"devops", "platform engineer", "staff engineer", "principal engineer",
	"data engineer", "ml engineer", "machine learning",
}

// KeywordFilter keeps jobs whose searchable text contains any keyword.
type KeywordFilter struct {
	Keywords []string
}

// NewKeywordFilter lowercases keywords and drops blanks. An empty list falls
// back to DefaultBuyerRoles.
func NewKeywordFilter(keywords []string) *KeywordFilter {
	kws := cleanKeywords(keywords)
	if len(kws) == 0 {
		kws = cleanKeywords(DefaultBuyerRoles)
	}
	return &KeywordFilter{Keywords: kws}
}

// Match reports whether job contains one of the filter keywords.
func (f *KeywordFilter) Match(job NormalizedJob) bool {
	text := searchText(job)
	for _, kw := range f.Keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Apply returns the jobs that match, preserving order.
func (f *KeywordFilter) Apply(jobs []NormalizedJob) []NormalizedJob {
	passed := make([]NormalizedJob, 0, len(jobs))
	for _, j := range jobs {
		if f.Match(j) {
			passed = append(passed, j)
		}
	}
	return passed
}

func searchText(job NormalizedJob) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{job.Title, job.Company, strings.Join(job.Tags, " "), truncateRunes(job.Description, 500)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

func cleanKeywords(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// keywordsFile accepts either a bare YAML list or a "keywords:" mapping.
type keywordsFile struct {
	Keywords []string `yaml:"keywords"`
}

// LoadKeywordsFile reads a YAML keyword list from path.
func LoadKeywordsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read keywords file %s", path)
	}

	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		return cleanKeywords(list), nil
	}

	var doc keywordsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse keywords file %s", path)
	}
	return cleanKeywords(doc.Keywords), nil
}

const keywordSystemPrompt = "You are an expert B2B sales strategist. Your job is to identify " +
	"which job roles at a company would most likely be the decision-maker " +
	"or buyer for a given product."

const keywordUserPrompt = `Given the product description below, generate a list of job role keywords.
These keywords will be used to search and filter job postings to find companies who are potential customers.

PRODUCT DESCRIPTION:
%s

INSTRUCTIONS:
- List 15-25 specific job role keywords or phrases (lowercase)
- Focus on roles that would FEEL the pain your product solves or have BUDGET authority
- Include both seniority levels (e.g. "head of engineering", "engineering manager")
- Be specific and avoid generic terms like "manager" or "developer" alone
- Return ONLY a valid JSON array of strings, nothing else

Example output format:
["cto", "vp engineering", "head of engineering", "engineering manager", "director of engineering"]
`

// KeywordGenerator asks the LLM for buyer-role keywords once per process.
// Any failure yields DefaultBuyerRoles.
type KeywordGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	product   string

	once     sync.Once
	keywords []string
}

// NewKeywordGenerator creates a KeywordGenerator.
func NewKeywordGenerator(client anthropic.Client, model string, maxTokens int64, product string) *KeywordGenerator {
	return &KeywordGenerator{client: client, model: model, maxTokens: maxTokens, product: product}
}

// Keywords returns the generated keyword list, computing it on first use.
func (g *KeywordGenerator) Keywords(ctx context.Context) []string {
	g.once.Do(func() {
		kws, err := g.generate(ctx)
		if err != nil {
			zap.L().Warn("ingest: keyword generation failed, using defaults", zap.Error(err))
			g.keywords = append([]string(nil), DefaultBuyerRoles...)
			return
		}
		zap.L().Info("ingest: generated keywords", zap.Int("count", len(kws)), zap.Strings("keywords", kws))
		g.keywords = kws
	})
	return g.keywords
}

func (g *KeywordGenerator) generate(ctx context.Context) ([]string, error) {
	temp := 0.3
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		System:      keywordSystemPrompt,
		Messages:    []anthropic.Message{{Role: "user", Content: fmt.Sprintf(keywordUserPrompt, g.product)}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "ingest: generate keywords")
	}
	resp.Usage.LogCost(g.model, "keyword_generation")

	raw, ok := qualify.ExtractJSON(resp.Text())
	if !ok {
		return nil, eris.New("ingest: no JSON in keyword response")
	}
	var kws []string
	if err := json.Unmarshal([]byte(raw), &kws); err != nil {
		return nil, eris.Wrap(err, "ingest: keyword response is not a string array")
	}
	kws = cleanKeywords(kws)
	if len(kws) == 0 {
		return nil, eris.New("ingest: empty keyword list")
	}
	return kws, nil
}
