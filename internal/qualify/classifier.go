package qualify

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// Classifier judges whether a posting's company is a prospective customer.
// The returned text is untrusted and must go through ParseQualification.
type Classifier interface {
	Classify(ctx context.Context, posting model.JobPosting, product string) (string, error)
}

const systemPrompt = "You are an expert B2B lead qualification analyst. " +
	"You analyze job postings and company context to identify potential customers " +
	"for a given product. Be analytical, concise, and realistic in your scoring."

const userPrompt = `Analyze whether this company is a potential customer for our product.

PRODUCT DESCRIPTION:
%s

JOB POSTING:
Company: %s
Job Title: %s
Location: %s
Description:
%s

INSTRUCTIONS:
Determine if this company is likely to need and buy our product based on the job posting context.
Consider: company size signals, tech stack, team structure, growth stage, and the job role's pain points.

Return ONLY a valid JSON object with exactly these fields:
{
  "is_qualified": true or false,
  "relevance_score": <integer 0-100>,
  "reason": "<1-2 sentence explanation of why they are or aren't a good lead>",
  "target_contact_role": "<ideal job title to reach out to at this company>",
  "company_pain_points": ["<pain point 1>", "<pain point 2>", "<pain point 3>"]
}

Scoring guide:
- 80-100: Strong signal, company clearly needs this product
- 60-79:  Good lead, reasonable fit with potential
- 40-59:  Weak lead, marginal fit
- 0-39:   Not qualified, poor fit; set is_qualified to false
`

// AnthropicClassifier classifies postings with the Anthropic Messages API.
type AnthropicClassifier struct {
	client        anthropic.Client
	model         string
	maxTokens     int64
	maxInputChars int
}

// NewAnthropicClassifier creates a classifier. maxInputChars bounds the
// description sent to the model.
func NewAnthropicClassifier(client anthropic.Client, model string, maxTokens int64, maxInputChars int) *AnthropicClassifier {
	return &AnthropicClassifier{client: client, model: model, maxTokens: maxTokens, maxInputChars: maxInputChars}
}

// Classify implements Classifier.
func (c *AnthropicClassifier) Classify(ctx context.Context, posting model.JobPosting, product string) (string, error) {
	location := posting.CompanyLocation
	if location == "" {
		location = "Remote"
	}
	temp := 0.2
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{{
			Role: "user",
			Content: fmt.Sprintf(userPrompt, product, posting.CompanyName, posting.Title, location,
				Truncate(posting.Description, c.maxInputChars)),
		}},
		Temperature: &temp,
	})
	if err != nil {
		return "", eris.Wrapf(err, "qualify: classify posting %d", posting.ID)
	}
	resp.Usage.LogCost(c.model, "qualification")
	return resp.Text(), nil
}

// Truncate keeps the first max characters of s and appends "..." when
// anything was cut. A non-positive max leaves s unchanged.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}
