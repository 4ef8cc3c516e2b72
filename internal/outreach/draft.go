package outreach

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/qualify"
	"github.com/sells-group/leadgen-cli/pkg/anthropic"
)

// ErrUnparsableDraft is returned when generator output has no usable
// subject and body.
var ErrUnparsableDraft = eris.New("outreach: unparsable draft")

// Draft is a generated email before rendering.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Drafter produces a personalized email for a lead.
type Drafter interface {
	Draft(ctx context.Context, lead model.Lead) (Draft, error)
}

// ParseDraft extracts a Draft from untrusted generator text. Both fields
// must be non-empty strings.
func ParseDraft(text string) (Draft, error) {
	raw, ok := qualify.ExtractJSON(text)
	if !ok {
		return Draft{}, eris.Wrap(ErrUnparsableDraft, "no JSON object found")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Draft{}, eris.Wrap(ErrUnparsableDraft, "expected a JSON object")
	}

	var d Draft
	for name, dst := range map[string]*string{"subject": &d.Subject, "body": &d.Body} {
		v, ok := fields[name]
		if !ok {
			return Draft{}, eris.Wrapf(ErrUnparsableDraft, "missing %s", name)
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return Draft{}, eris.Wrapf(ErrUnparsableDraft, "%s must be a string", name)
		}
		*dst = strings.TrimSpace(*dst)
		if *dst == "" {
			return Draft{}, eris.Wrapf(ErrUnparsableDraft, "empty %s", name)
		}
	}
	return d, nil
}

const draftSystemPrompt = "You are an expert cold outreach copywriter specializing in B2B SaaS. " +
	"You write short, personalized, and compelling cold emails that get replies. " +
	"Never use hollow phrases like 'I hope this email finds you well' or 'synergy'. " +
	"Write like a real person, not a marketing bot."

const draftUserPrompt = `Write a personalized cold outreach email for the following lead.

OUR PRODUCT:
%s

LEAD CONTEXT:
Company: %s
Job Title Seen: %s
Target Contact Role: %s
Why They're A Good Fit: %s
Company Pain Points: %s

REQUIREMENTS:
- Subject line: short, specific, no clickbait (max 8 words)
- Email body: 4-6 sentences max, conversational tone
- Mention ONE specific pain point relevant to them
- End with a soft, low-pressure CTA (e.g., "Worth a quick call?")
- Do NOT use the recipient's name (we don't have it)
- Do NOT use placeholder text like [Name] or [Company]

Return ONLY a valid JSON object with exactly these two fields:
{
  "subject": "<email subject line>",
  "body": "<email body as plain text, use \n for line breaks>"
}
`

// LLMDrafter drafts emails with the Anthropic Messages API.
type LLMDrafter struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	product   string
}

// NewLLMDrafter creates an LLMDrafter for the given product description.
func NewLLMDrafter(client anthropic.Client, model string, maxTokens int64, product string) *LLMDrafter {
	return &LLMDrafter{client: client, model: model, maxTokens: maxTokens, product: product}
}

// Draft implements Drafter.
func (d *LLMDrafter) Draft(ctx context.Context, lead model.Lead) (Draft, error) {
	painPoints := "none identified"
	if len(lead.CompanyPainPoints) > 0 {
		painPoints = strings.Join(lead.CompanyPainPoints, "; ")
	}
	role := lead.ContactRole
	if role == "" {
		role = "Engineering leadership"
	}

	temp := 0.7
	resp, err := d.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     d.model,
		MaxTokens: d.maxTokens,
		System:    draftSystemPrompt,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf(draftUserPrompt, d.product, lead.CompanyName, lead.JobTitle, role, lead.Reason, painPoints),
		}},
		Temperature: &temp,
	})
	if err != nil {
		return Draft{}, eris.Wrapf(err, "outreach: draft email for lead %d", lead.ID)
	}
	resp.Usage.LogCost(d.model, "email_draft")
	return ParseDraft(resp.Text())
}
