// Package docgen renders the decision document from the structured model.
// Rendering is deterministic: identical inputs produce identical bytes, and
// the section body emitted inside a full document is byte-for-byte what
// GenerateSection returns for the same payload. The sync layer relies on
// that equivalence for surgical section updates.
package docgen

import (
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"crux/api/internal/analysis"
)

// Placeholder is the body rendered for a component with no data yet.
const Placeholder = "_Not started._"

// ErrNoTemplate indicates a component kind without a registered section
// template. This is a packaging defect, never a user input problem.
var ErrNoTemplate = errors.New("no template registered for component kind")

// Format selects how much of the document is rendered.
type Format string

const (
	FormatFull    Format = "full"
	FormatSummary Format = "summary"
	FormatExport  Format = "export"
)

// Options controls document rendering. Timestamp is injected by the caller
// so that output stays deterministic.
type Options struct {
	IncludeMetadata      bool
	IncludeEmptySections bool
	Format               Format
	Status               string
	Version              int64
	Timestamp            time.Time
}

var summaryKinds = map[analysis.Kind]bool{
	analysis.KindFrame:          true,
	analysis.KindRecommendation: true,
	analysis.KindQuality:        true,
}

type Generator struct {
	templates map[analysis.Kind]*template.Template
}

func New() *Generator {
	g := &Generator{templates: make(map[analysis.Kind]*template.Template)}
	for kind, text := range sectionTemplates {
		g.templates[kind] = template.Must(
			template.New(string(kind)).Funcs(template.FuncMap{
				"score": formatScore,
				"cell":  escapeCell,
			}).Parse(text),
		)
	}
	return g
}

// GenerateSection renders one component's section body. Empty payloads
// render the placeholder; a missing template is a TemplateError.
func (g *Generator) GenerateSection(kind analysis.Kind, payload analysis.Payload) (string, error) {
	tmpl, ok := g.templates[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoTemplate, kind)
	}
	payload.Kind = kind
	if payload.Empty() {
		return Placeholder, nil
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", fmt.Errorf("render %s section: %w", kind, err)
	}
	return buf.String(), nil
}

// Generate renders the full document for the model.
func (g *Generator) Generate(title string, model analysis.Model, opts Options) (string, error) {
	if opts.Format == "" {
		opts.Format = FormatFull
	}

	parts := []string{"# " + title}
	if opts.IncludeMetadata && opts.Format != FormatExport {
		parts = append(parts, metadataBlock(opts))
	}

	for _, kind := range analysis.Order {
		if opts.Format == FormatSummary && !summaryKinds[kind] {
			continue
		}
		payload := model[kind]
		payload.Kind = kind
		if payload.Empty() && !opts.IncludeEmptySections {
			continue
		}
		body, err := g.GenerateSection(kind, payload)
		if err != nil {
			return "", err
		}
		parts = append(parts, "## "+kind.Heading(), body)
	}

	return strings.Join(parts, "\n\n") + "\n", nil
}

func metadataBlock(opts Options) string {
	return fmt.Sprintf("> Status: %s · Version: %d · Updated: %s",
		opts.Status, opts.Version, opts.Timestamp.UTC().Format(time.RFC3339))
}

func formatScore(score int) string {
	if score > 0 {
		return fmt.Sprintf("+%d", score)
	}
	return fmt.Sprintf("%d", score)
}

// escapeCell makes a value safe inside a table cell. The parser reverses the
// escaping, so cell values containing pipes or backslashes round-trip exactly.
func escapeCell(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, "|", `\|`)
}

var sectionTemplates = map[analysis.Kind]string{
	analysis.KindFrame: `{{.Frame}}`,

	analysis.KindObjectives: `| Objective | Measure |
| --- | --- |
{{- range .Objectives}}
| {{cell .Name}} | {{cell .Measure}} |
{{- end}}`,

	analysis.KindAlternatives: `| Alternative | Description |
| --- | --- |
{{- range .Alternatives}}
| {{cell .Name}} | {{cell .Description}} |
{{- end}}`,

	analysis.KindConsequences: `| Objective |{{range .Matrix.Alternatives}} {{cell .}} |{{end}}
| --- |{{range .Matrix.Alternatives}} --- |{{end}}
{{- range .Matrix.Rows}}
| {{cell .Objective}} |{{range .Scores}} {{score .}} |{{end}}
{{- end}}`,

	analysis.KindTradeoffs: `| Tradeoff | Notes |
| --- | --- |
{{- range .Tradeoffs}}
| {{cell .Topic}} | {{cell .Notes}} |
{{- end}}`,

	analysis.KindRecommendation: `**Choice:** {{.Recommendation.Choice}}
{{- if .Recommendation.Rationale}}

{{.Recommendation.Rationale}}
{{- end}}`,

	analysis.KindQuality: `| Element | Score |
| --- | --- |
{{- range .Quality}}
| {{cell .Element}} | {{.Score}} |
{{- end}}`,
}
