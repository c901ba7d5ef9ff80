package docparse

import (
	"strings"

	"crux/api/internal/analysis"
)

// Segment is one extracted slice of the document. Known sections carry a
// component kind; unknown headings keep Kind empty but preserve their text
// verbatim so human notes are never destroyed on regeneration.
type Segment struct {
	Kind        analysis.Kind
	HeadingLine string
	Body        string // body with surrounding blank lines trimmed
	Block       string // exact bytes from heading line to next heading
}

// Extraction is the result of splitting a document into sections.
type Extraction struct {
	Preamble    string // exact bytes before the first section heading
	Segments    []Segment
	Diagnostics []Diagnostic
}

// Section returns the segment for a component kind, if present.
func (e Extraction) Section(kind analysis.Kind) (Segment, bool) {
	for _, segment := range e.Segments {
		if segment.Kind == kind {
			return segment, true
		}
	}
	return Segment{}, false
}

// Extract splits document text on the fixed heading grammar: one top-level
// "## " heading per component, canonical order. Unknown, duplicate, or
// out-of-order headings produce warnings but never abort extraction.
// Missing headings are not reported; the component has no section yet.
func Extract(text string) Extraction {
	var result Extraction

	lines := strings.SplitAfter(text, "\n")
	type headingMark struct {
		lineIdx int
		offset  int
		title   string
	}
	var marks []headingMark
	offset := 0
	for i, line := range lines {
		if strings.HasPrefix(line, "## ") {
			marks = append(marks, headingMark{lineIdx: i, offset: offset, title: strings.TrimSpace(strings.TrimPrefix(line, "## "))})
		}
		offset += len(line)
	}

	if len(marks) == 0 {
		result.Preamble = text
		return result
	}
	result.Preamble = text[:marks[0].offset]

	seen := make(map[analysis.Kind]bool)
	lastPos := -1
	for i, mark := range marks {
		end := len(text)
		if i+1 < len(marks) {
			end = marks[i+1].offset
		}
		block := text[mark.offset:end]
		headingLine := strings.TrimRight(lines[mark.lineIdx], "\n")
		bodyStart := mark.offset + len(lines[mark.lineIdx])
		body := strings.Trim(text[bodyStart:end], "\n")

		segment := Segment{HeadingLine: headingLine, Body: body, Block: block}

		kind, known := analysis.KindForHeading(mark.title)
		switch {
		case !known:
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Severity: SeverityWarning,
				Message:  "unexpected heading \"" + mark.title + "\"; content preserved verbatim",
			})
		case seen[kind]:
			// Second occurrence is preserved but not parsed as the component.
			result.Diagnostics = append(result.Diagnostics, Diagnostic{
				Severity: SeverityWarning,
				Kind:     kind,
				Message:  "duplicate heading \"" + mark.title + "\"; later occurrence preserved verbatim",
			})
		default:
			segment.Kind = kind
			seen[kind] = true
			if pos := analysis.Position(kind); pos < lastPos {
				result.Diagnostics = append(result.Diagnostics, Diagnostic{
					Severity: SeverityWarning,
					Kind:     kind,
					Message:  "heading \"" + mark.title + "\" is out of canonical order",
				})
			} else {
				lastPos = pos
			}
		}
		result.Segments = append(result.Segments, segment)
	}
	return result
}
