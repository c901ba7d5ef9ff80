package export

import (
	"bytes"
	"html/template"
	"time"
)

// TemplateData holds data for document template rendering.
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
	Version     int64
	GeneratedAt time.Time
}

var documentTemplate = template.Must(template.New("document").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
}).Parse(documentTemplateHTML))

// RenderDocumentHTML renders the export page template with provided data.
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    h2 { margin-top: 2rem; }
    table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
    th { background: #f5f5f5; }
    blockquote { color: #666; border-left: 3px solid #ccc; margin: 0; padding-left: 1rem; }
    .footer { color: #999; font-size: 0.85em; margin-top: 3rem; border-top: 1px solid #eee; padding-top: 0.5rem; }
  </style>
</head>
<body>
  {{.ContentHTML}}
  <div class="footer">Version {{.Version}} · exported {{formatDate .GeneratedAt "Jan 2, 2006"}}</div>
</body>
</html>`
