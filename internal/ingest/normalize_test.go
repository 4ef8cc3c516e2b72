package ingest

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/pkg/remoteok"
)

func TestNormalize_FullJob(t *testing.T) {
	n := NewNormalizer(0)
	got, err := n.Normalize(remoteok.Job{
		ID:          "101",
		Date:        "2024-06-01T12:00:00+02:00",
		Company:     "  Acme  ",
		CompanyLogo: "https://www.Acme.io/logo.png",
		Position:    "senior   devops engineer",
		Tags:        []string{"DevOps", " AWS "},
		Description: "<p>Run our <b>infra</b></p><ul><li>Terraform</li><li>K8s</li></ul>",
		Location:    "Worldwide",
		ApplyURL:    "https://acme.io/apply",
		URL:         "https://remoteok.com/l/101",
	})
	require.NoError(t, err)

	assert.Equal(t, "remoteok", got.Source)
	assert.Equal(t, "101", got.ExternalID)
	assert.Equal(t, "Senior Devops Engineer", got.Title)
	assert.Equal(t, "Acme", got.Company)
	assert.Equal(t, "acme.io", got.Domain)
	assert.Equal(t, "https://www.Acme.io/logo.png", got.CompanyURL)
	assert.Equal(t, "https://acme.io/apply", got.URL)
	assert.Equal(t, "Worldwide", got.Location)
	assert.Equal(t, "Run our infra Terraform K8s", got.Description)
	assert.Equal(t, []string{"devops", "aws"}, got.Tags)
	require.NotNil(t, got.PostedAt)
	assert.Equal(t, time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), *got.PostedAt)
}

func TestNormalize_Fallbacks(t *testing.T) {
	n := NewNormalizer(0)
	got, err := n.Normalize(remoteok.Job{
		ID:       "102",
		Epoch:    "1717200000",
		Company:  "Globex",
		Position: "data engineer",
		Tags:     []string{"Python", "SQL"},
		URL:      "https://remoteok.com/l/102",
	})
	require.NoError(t, err)

	assert.Equal(t, "Remote", got.Location)
	assert.Equal(t, "https://remoteok.com/l/102", got.URL)
	assert.Empty(t, got.Domain, "board host is not an employer domain")
	assert.Equal(t, "Role: Data Engineer at Globex. Tags: Python, SQL", got.Description)
	require.NotNil(t, got.PostedAt)
	assert.Equal(t, int64(1717200000), got.PostedAt.Unix())
}

func TestNormalize_MissingFields(t *testing.T) {
	n := NewNormalizer(0)

	_, err := n.Normalize(remoteok.Job{ID: "1", Company: "Acme"})
	assert.ErrorIs(t, err, ErrMalformedInput)

	_, err = n.Normalize(remoteok.Job{ID: "2", Position: "CTO", Company: "   "})
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestNormalize_DescriptionCapped(t *testing.T) {
	n := NewNormalizer(10)
	got, err := n.Normalize(remoteok.Job{
		ID: "3", Company: "Acme", Position: "CTO",
		Description: strings.Repeat("é", 50),
	})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 10), got.Description)
}

func TestNormalize_NoDate(t *testing.T) {
	got, err := NewNormalizer(0).Normalize(remoteok.Job{ID: "4", Company: "Acme", Position: "CTO", Date: "yesterday"})
	require.NoError(t, err)
	assert.Nil(t, got.PostedAt)
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"plain text", "plain text"},
		{"<p>a</p><p>b</p>", "a b"},
		{"line<br>break", "line break"},
		{"Fish &amp; Chips", "Fish & Chips"},
		{"<div>\n\n  spaced \t out </div>", "spaced out"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripHTML(tt.in), tt.in)
	}
}
