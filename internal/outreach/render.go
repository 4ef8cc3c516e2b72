package outreach

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/rotisserie/eris"
)

// Rendered is final delivery content.
type Rendered struct {
	Subject string
	HTML    string
	Plain   string
}

// Renderer wraps a plain-text draft in the HTML email layout.
type Renderer struct {
	tmpl *template.Template
}

var emailLayout = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Subject}}</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; font-size: 15px; line-height: 1.6; color: #1a1a1a; background: #ffffff; margin: 0; padding: 0; }
    .container { max-width: 600px; margin: 40px auto; padding: 0 24px; }
    p { margin: 0 0 12px 0; }
    .signature { margin-top: 32px; color: #555; font-size: 14px; border-top: 1px solid #eee; padding-top: 16px; }
  </style>
</head>
<body>
  <div class="container">
{{- range .Lines}}
    {{if .}}<p>{{.}}</p>{{else}}<br>{{end}}
{{- end}}
    <div class="signature">
      <strong>{{.Sender}}</strong>
    </div>
  </div>
</body>
</html>
`

// NewRenderer parses the email layout.
func NewRenderer() *Renderer {
	return &Renderer{tmpl: template.Must(template.New("email").Parse(emailLayout))}
}

// Render produces HTML and plain-text bodies. Each non-blank body line
// becomes a paragraph and each blank line a break. Draft text is escaped.
func (r *Renderer) Render(d Draft, sender string) (Rendered, error) {
	body := strings.TrimSpace(strings.ReplaceAll(d.Body, "\r\n", "\n"))

	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}

	var buf bytes.Buffer
	err := r.tmpl.Execute(&buf, struct {
		Subject string
		Sender  string
		Lines   []string
	}{Subject: d.Subject, Sender: sender, Lines: lines})
	if err != nil {
		return Rendered{}, eris.Wrap(err, "outreach: render email")
	}

	return Rendered{Subject: d.Subject, HTML: buf.String(), Plain: body}, nil
}
