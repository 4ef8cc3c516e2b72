package qualify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// FallbackReason is the reason recorded when classifier output is unusable.
const FallbackReason = "parsing failed"

// Qualification is the classifier's structured verdict on a posting.
type Qualification struct {
	IsQualified       bool     `json:"is_qualified"`
	RelevanceScore    int      `json:"relevance_score"`
	Reason            string   `json:"reason"`
	TargetContactRole string   `json:"target_contact_role"`
	CompanyPainPoints []string `json:"company_pain_points"`
}

// FallbackQualification is the safe outcome for unusable classifier output.
func FallbackQualification() Qualification {
	return Qualification{IsQualified: false, RelevanceScore: 0, Reason: FallbackReason, CompanyPainPoints: []string{}}
}

// Result is either a parsed Qualification (Ok) or the reason parsing fell
// back (Fallback). Exactly one is set.
type Result struct {
	Ok       *Qualification
	Fallback string
}

// IsFallback reports whether the result carries no usable qualification.
func (r Result) IsFallback() bool {
	return r.Ok == nil
}

// Qualification returns the parsed value or FallbackQualification.
func (r Result) Qualification() Qualification {
	if r.Ok == nil {
		return FallbackQualification()
	}
	return *r.Ok
}

func fallback(format string, args ...any) Result {
	return Result{Fallback: FallbackReason + ": " + fmt.Sprintf(format, args...)}
}

// ParseQualification extracts and validates a Qualification from raw
// classifier text. It never fails; unusable input yields a Fallback result.
func ParseQualification(text string) Result {
	raw, ok := ExtractJSON(text)
	if !ok {
		return fallback("no JSON value found")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return fallback("expected a JSON object")
	}

	var q Qualification

	if err := decodeField(fields, "is_qualified", &q.IsQualified); err != "" {
		return fallback("%s", err)
	}

	score, reason := decodeScore(fields["relevance_score"])
	if reason != "" {
		return fallback("%s", reason)
	}
	q.RelevanceScore = score

	if err := decodeField(fields, "reason", &q.Reason); err != "" {
		return fallback("%s", err)
	}
	if err := decodeField(fields, "target_contact_role", &q.TargetContactRole); err != "" {
		return fallback("%s", err)
	}
	if err := decodeField(fields, "company_pain_points", &q.CompanyPainPoints); err != "" {
		return fallback("%s", err)
	}
	if q.CompanyPainPoints == nil {
		return fallback("company_pain_points must be an array of strings")
	}

	return Result{Ok: &q}
}

// decodeField strictly decodes a required field. json.Unmarshal already
// rejects mismatched kinds (a string into bool, a number into string); null
// is rejected explicitly because Unmarshal treats it as a no-op.
func decodeField(fields map[string]json.RawMessage, name string, dst any) string {
	raw, ok := fields[name]
	if !ok {
		return "missing " + name
	}
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return name + " is null"
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return "invalid " + name
	}
	return ""
}

// decodeScore accepts integral JSON numbers in [0, 100]. 80.0 is accepted;
// 80.5, "80" and 101 are not.
func decodeScore(raw json.RawMessage) (int, string) {
	if raw == nil {
		return 0, "missing relevance_score"
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, "invalid relevance_score"
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, "relevance_score must be a number"
	}
	f, err := n.Float64()
	if err != nil || math.Trunc(f) != f {
		return 0, "relevance_score must be an integer"
	}
	if f < 0 || f > 100 {
		return 0, fmt.Sprintf("relevance_score %v out of range 0-100", n)
	}
	return int(f), ""
}
