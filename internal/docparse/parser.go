package docparse

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"crux/api/internal/analysis"
	"crux/api/internal/docgen"
)

// ParseSection parses one raw section body against its expected component
// kind. A nil payload with no diagnostics means the section is empty (the
// placeholder or blank). Any error-severity diagnostic means the section
// must not be written back.
func ParseSection(raw string, kind analysis.Kind) (*analysis.Payload, []Diagnostic) {
	body := strings.TrimSpace(raw)
	if body == "" || body == docgen.Placeholder {
		return nil, nil
	}

	switch kind {
	case analysis.KindFrame:
		return &analysis.Payload{Kind: kind, Frame: body}, nil
	case analysis.KindObjectives:
		return parseObjectives(body)
	case analysis.KindAlternatives:
		return parseAlternatives(body)
	case analysis.KindConsequences:
		return parseConsequences(body)
	case analysis.KindTradeoffs:
		return parseTradeoffs(body)
	case analysis.KindRecommendation:
		return parseRecommendation(body)
	case analysis.KindQuality:
		return parseQuality(body)
	}
	return nil, []Diagnostic{{Severity: SeverityError, Kind: kind, Message: "unknown component kind"}}
}

// table holds the parsed rows of a markdown table plus row-level warnings
// for lines that were skipped.
type table struct {
	header []string
	rows   [][]string
}

func parseTable(body string, kind analysis.Kind) (table, []Diagnostic) {
	var t table
	var diags []Diagnostic
	dataRow := 0
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "|") {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Kind:     kind,
				Message:  "non-table line skipped: \"" + truncate(trimmed, 60) + "\"",
			})
			continue
		}
		cells := splitRow(trimmed)
		if isSeparatorRow(cells) {
			continue
		}
		if t.header == nil {
			t.header = cells
			if len(t.header) < 2 {
				diags = append(diags, Diagnostic{
					Severity: SeverityWarning,
					Kind:     kind,
					Message:  "table needs at least 2 columns; rows skipped",
				})
			}
			continue
		}
		dataRow++
		if len(t.header) < 2 {
			t.rows = append(t.rows, nil)
			continue
		}
		if len(cells) != len(t.header) {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Kind:     kind,
				Row:      dataRow,
				Message:  "row has " + strconv.Itoa(len(cells)) + " columns, expected " + strconv.Itoa(len(t.header)) + "; skipped",
			})
			// Keep a placeholder so later row numbering still matches the document.
			t.rows = append(t.rows, nil)
			continue
		}
		t.rows = append(t.rows, cells)
	}
	return t, diags
}

// splitRow splits a table line on unescaped pipes. The generator escapes
// literal pipes and backslashes inside cell values; splitRow undoes that so
// cell bytes round-trip exactly.
func splitRow(line string) []string {
	line = strings.TrimPrefix(line, "|")
	if strings.HasSuffix(line, "|") && !strings.HasSuffix(line, `\|`) {
		line = line[:len(line)-1]
	}

	var cells []string
	var cell strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			if r != '|' && r != '\\' {
				cell.WriteRune('\\')
			}
			cell.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '|':
			cells = append(cells, strings.TrimSpace(cell.String()))
			cell.Reset()
		default:
			cell.WriteRune(r)
		}
	}
	if escaped {
		cell.WriteRune('\\')
	}
	cells = append(cells, strings.TrimSpace(cell.String()))
	return cells
}

func isSeparatorRow(cells []string) bool {
	for _, cell := range cells {
		stripped := strings.Trim(cell, ":- ")
		if stripped != "" || !strings.Contains(cell, "-") {
			return false
		}
	}
	return len(cells) > 0
}

func parseObjectives(body string) (*analysis.Payload, []Diagnostic) {
	t, diags := parseTable(body, analysis.KindObjectives)
	payload := analysis.Payload{Kind: analysis.KindObjectives}
	for i, row := range t.rows {
		if row == nil {
			continue
		}
		if row[0] == "" {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning, Kind: analysis.KindObjectives, Row: i + 1,
				Message: "objective name is empty; row skipped",
			})
			continue
		}
		payload.Objectives = append(payload.Objectives, analysis.Objective{Name: row[0], Measure: row[1]})
	}
	if payload.Empty() {
		return nil, diags
	}
	return &payload, diags
}

func parseAlternatives(body string) (*analysis.Payload, []Diagnostic) {
	t, diags := parseTable(body, analysis.KindAlternatives)
	payload := analysis.Payload{Kind: analysis.KindAlternatives}
	for i, row := range t.rows {
		if row == nil {
			continue
		}
		if row[0] == "" {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning, Kind: analysis.KindAlternatives, Row: i + 1,
				Message: "alternative name is empty; row skipped",
			})
			continue
		}
		payload.Alternatives = append(payload.Alternatives, analysis.Alternative{Name: row[0], Description: row[1]})
	}
	if payload.Empty() {
		return nil, diags
	}
	return &payload, diags
}

func parseConsequences(body string) (*analysis.Payload, []Diagnostic) {
	t, diags := parseTable(body, analysis.KindConsequences)
	if len(t.header) < 2 {
		diags = append(diags, Diagnostic{
			Severity: SeverityError, Kind: analysis.KindConsequences,
			Message: "consequence matrix needs at least one alternative column",
		})
		return nil, diags
	}
	matrix := &analysis.Matrix{Alternatives: t.header[1:]}
	for i, row := range t.rows {
		if row == nil {
			continue
		}
		parsed := analysis.RatingRow{Objective: row[0]}
		ok := true
		for c, cell := range row[1:] {
			score, err := parseScore(cell)
			if err != nil {
				diags = append(diags, Diagnostic{
					Severity: SeverityWarning, Kind: analysis.KindConsequences,
					Row: i + 1, Column: matrix.Alternatives[c],
					Message: "cell \"" + cell + "\" is not a rating; row skipped",
				})
				ok = false
				break
			}
			if score < analysis.RatingMin || score > analysis.RatingMax {
				diags = append(diags, Diagnostic{
					Severity: SeverityError, Kind: analysis.KindConsequences,
					Row: i + 1, Column: matrix.Alternatives[c],
					Message: "rating " + strconv.Itoa(score) + " outside scale " +
						strconv.Itoa(analysis.RatingMin) + ".." + strconv.Itoa(analysis.RatingMax),
				})
				ok = false
				break
			}
			parsed.Scores = append(parsed.Scores, score)
		}
		if ok {
			matrix.Rows = append(matrix.Rows, parsed)
		}
	}
	if len(matrix.Rows) == 0 && !HasErrors(diags) {
		return nil, diags
	}
	return &analysis.Payload{Kind: analysis.KindConsequences, Matrix: matrix}, diags
}

func parseTradeoffs(body string) (*analysis.Payload, []Diagnostic) {
	t, diags := parseTable(body, analysis.KindTradeoffs)
	payload := analysis.Payload{Kind: analysis.KindTradeoffs}
	for i, row := range t.rows {
		if row == nil {
			continue
		}
		if row[0] == "" {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning, Kind: analysis.KindTradeoffs, Row: i + 1,
				Message: "tradeoff topic is empty; row skipped",
			})
			continue
		}
		payload.Tradeoffs = append(payload.Tradeoffs, analysis.Tradeoff{Topic: row[0], Notes: row[1]})
	}
	if payload.Empty() {
		return nil, diags
	}
	return &payload, diags
}

const choicePrefix = "**Choice:**"

func parseRecommendation(body string) (*analysis.Payload, []Diagnostic) {
	lines := strings.Split(body, "\n")
	rec := analysis.Recommendation{}
	var rest []string
	found := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !found && strings.HasPrefix(trimmed, choicePrefix) {
			rec.Choice = strings.TrimSpace(strings.TrimPrefix(trimmed, choicePrefix))
			found = true
			continue
		}
		rest = append(rest, line)
	}
	rec.Rationale = strings.Trim(strings.Join(rest, "\n"), "\n")

	var diags []Diagnostic
	if !found {
		diags = append(diags, Diagnostic{
			Severity: SeverityWarning, Kind: analysis.KindRecommendation,
			Message: "no \"**Choice:**\" line found; text kept as rationale",
		})
	}
	if rec.Choice == "" && rec.Rationale == "" {
		return nil, diags
	}
	return &analysis.Payload{Kind: analysis.KindRecommendation, Recommendation: &rec}, diags
}

func parseQuality(body string) (*analysis.Payload, []Diagnostic) {
	t, diags := parseTable(body, analysis.KindQuality)
	payload := analysis.Payload{Kind: analysis.KindQuality}
	for i, row := range t.rows {
		if row == nil {
			continue
		}
		score, err := strconv.Atoi(strings.TrimSuffix(row[1], "%"))
		if err != nil {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning, Kind: analysis.KindQuality, Row: i + 1, Column: "Score",
				Message: "score \"" + row[1] + "\" is not a number; row skipped",
			})
			continue
		}
		if score < analysis.QualityMin || score > analysis.QualityMax {
			diags = append(diags, Diagnostic{
				Severity: SeverityError, Kind: analysis.KindQuality, Row: i + 1, Column: "Score",
				Message: "score " + strconv.Itoa(score) + " outside " +
					strconv.Itoa(analysis.QualityMin) + ".." + strconv.Itoa(analysis.QualityMax),
			})
			continue
		}
		payload.Quality = append(payload.Quality, analysis.QualityElement{Element: row[0], Score: score})
	}
	if payload.Empty() && !HasErrors(diags) {
		return nil, diags
	}
	return &payload, diags
}

func parseScore(cell string) (int, error) {
	return strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(cell), "+"))
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "…"
}
