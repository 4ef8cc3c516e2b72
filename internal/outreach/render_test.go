package outreach

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_ParagraphsAndBreaks(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render(Draft{
		Subject: "Faster deploys at Acme",
		Body:    "Saw you're hiring platform engineers.\n\nWorth a quick call?\r\n",
	}, "The Team")
	require.NoError(t, err)

	assert.Equal(t, "Faster deploys at Acme", out.Subject)
	assert.Equal(t, "Saw you're hiring platform engineers.\n\nWorth a quick call?", out.Plain)
	assert.Contains(t, out.HTML, "<title>Faster deploys at Acme</title>")
	assert.Contains(t, out.HTML, "<p>Saw you&#39;re hiring platform engineers.</p>")
	assert.Contains(t, out.HTML, "<br>")
	assert.Contains(t, out.HTML, "<p>Worth a quick call?</p>")
	assert.Contains(t, out.HTML, `<div class="signature">`)
	assert.Contains(t, out.HTML, "<strong>The Team</strong>")
	assert.Equal(t, 2, strings.Count(out.HTML, "<p>"))
}

func TestRender_EscapesDraftText(t *testing.T) {
	out, err := NewRenderer().Render(Draft{Subject: "Hi", Body: "<script>alert(1)</script>"}, "Sales & Co")
	require.NoError(t, err)
	assert.NotContains(t, out.HTML, "<script>")
	assert.Contains(t, out.HTML, "&lt;script&gt;")
	assert.Contains(t, out.HTML, "Sales &amp; Co")
	assert.Equal(t, "<script>alert(1)</script>", out.Plain)
}
