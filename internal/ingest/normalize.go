// Package ingest turns raw job-board entries into persisted postings:
// normalization, keyword filtering, fingerprinting and the dedup gate.
package ingest

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/leadgen-cli/pkg/remoteok"
)

// ErrMalformedInput is returned for raw jobs missing a title or company.
var ErrMalformedInput = eris.New("ingest: malformed input")

// DefaultDescriptionMaxChars caps stored descriptions.
const DefaultDescriptionMaxChars = 4000

// NormalizedJob is a cleaned posting ready for filtering and storage.
type NormalizedJob struct {
	Source      string
	ExternalID  string
	Title       string
	Company     string
	CompanyURL  string
	Domain      string
	URL         string
	Location    string
	Description string
	Tags        []string
	PostedAt    *time.Time
}

// Normalizer cleans raw RemoteOK jobs.
type Normalizer struct {
	DescriptionMaxChars int
}

// NewNormalizer returns a Normalizer with the given description cap. A
// non-positive cap uses DefaultDescriptionMaxChars.
func NewNormalizer(maxChars int) *Normalizer {
	if maxChars <= 0 {
		maxChars = DefaultDescriptionMaxChars
	}
	return &Normalizer{DescriptionMaxChars: maxChars}
}

var titleCaser = cases.Title(language.English)

// boardHosts are job-board domains that identify the board rather than the
// employer. Logos and listing URLs are often served from them.
var boardHosts = []string{"remoteok.com", "remoteok.io"}

// Normalize converts a raw job into a NormalizedJob.
func (n *Normalizer) Normalize(raw remoteok.Job) (NormalizedJob, error) {
	title := normalizeTitle(raw.Position)
	company := strings.TrimSpace(raw.Company)
	if title == "" || company == "" {
		return NormalizedJob{}, eris.Wrapf(ErrMalformedInput, "job %s: missing title or company", raw.ID)
	}

	tags := make([]string, 0, len(raw.Tags))
	for _, t := range raw.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tags = append(tags, t)
		}
	}

	desc := StripHTML(raw.Description)
	if desc == "" {
		desc = "Role: " + title + " at " + company + ". Tags: " + strings.Join(raw.Tags, ", ")
	}

	location := strings.TrimSpace(raw.Location)
	if location == "" {
		location = "Remote"
	}

	return NormalizedJob{
		Source:      remoteok.Source,
		ExternalID:  string(raw.ID),
		Title:       title,
		Company:     company,
		CompanyURL:  firstNonEmpty(raw.CompanyLogo, raw.URL),
		Domain:      employerDomain(raw.CompanyLogo),
		URL:         firstNonEmpty(raw.ApplyURL, raw.URL),
		Location:    location,
		Description: truncateRunes(desc, n.maxChars()),
		Tags:        tags,
		PostedAt:    parsePostedAt(raw.Date, raw.Epoch),
	}, nil
}

func (n *Normalizer) maxChars() int {
	if n == nil || n.DescriptionMaxChars <= 0 {
		return DefaultDescriptionMaxChars
	}
	return n.DescriptionMaxChars
}

// StripHTML returns the text content of an HTML fragment. Text nodes are
// joined with spaces and runs of whitespace collapsed.
func StripHTML(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return collapseSpace(raw)
	}

	var b strings.Builder
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, c *goquery.Selection) {
			switch goquery.NodeName(c) {
			case "#text":
				b.WriteString(c.Text())
				b.WriteByte(' ')
			case "script", "style":
			default:
				walk(c)
			}
		})
	}
	walk(doc.Selection)
	return collapseSpace(b.String())
}

func normalizeTitle(s string) string {
	s = collapseSpace(s)
	if s == "" {
		return ""
	}
	return titleCaser.String(s)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func employerDomain(raw string) string {
	d := NormalizeDomain(raw)
	for _, h := range boardHosts {
		if d == h || strings.HasSuffix(d, "."+h) {
			return ""
		}
	}
	return d
}

func parsePostedAt(date string, epoch remoteok.FlexString) *time.Time {
	if date = strings.TrimSpace(date); date != "" {
		if t, err := time.Parse(time.RFC3339, date); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if secs, ok := epoch.Int64(); ok && secs > 0 {
		t := time.Unix(secs, 0).UTC()
		return &t
	}
	return nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
