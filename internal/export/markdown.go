package export

import (
	"html"
	"regexp"
	"strings"
)

var (
	boldPattern   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicPattern = regexp.MustCompile(`(^|\s)_([^_]+)_`)
)

// markdownToHTML renders the document's markdown grammar to HTML: headings,
// metadata blockquotes, pipe tables, and paragraphs with bold and italic
// spans. The grammar is the one the generator emits, not general markdown.
func markdownToHTML(markdown string) string {
	var out strings.Builder
	var paragraph []string
	var tableRows []string

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		out.WriteString("<p>" + inlineHTML(strings.Join(paragraph, " ")) + "</p>\n")
		paragraph = nil
	}
	flushTable := func() {
		if len(tableRows) == 0 {
			return
		}
		out.WriteString(renderTable(tableRows))
		tableRows = nil
	}

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flushParagraph()
			flushTable()
		case strings.HasPrefix(trimmed, "|"):
			flushParagraph()
			tableRows = append(tableRows, trimmed)
		case strings.HasPrefix(trimmed, "## "):
			flushParagraph()
			flushTable()
			out.WriteString("<h2>" + inlineHTML(strings.TrimPrefix(trimmed, "## ")) + "</h2>\n")
		case strings.HasPrefix(trimmed, "# "):
			flushParagraph()
			flushTable()
			out.WriteString("<h1>" + inlineHTML(strings.TrimPrefix(trimmed, "# ")) + "</h1>\n")
		case strings.HasPrefix(trimmed, "> "):
			flushParagraph()
			flushTable()
			out.WriteString("<blockquote>" + inlineHTML(strings.TrimPrefix(trimmed, "> ")) + "</blockquote>\n")
		default:
			flushTable()
			paragraph = append(paragraph, trimmed)
		}
	}
	flushParagraph()
	flushTable()
	return out.String()
}

func renderTable(rows []string) string {
	var out strings.Builder
	out.WriteString("<table>\n")
	headerDone := false
	for _, row := range rows {
		cells := splitTableRow(row)
		if isSeparator(cells) {
			continue
		}
		tag := "td"
		if !headerDone {
			tag = "th"
			headerDone = true
		}
		out.WriteString("<tr>")
		for _, cell := range cells {
			out.WriteString("<" + tag + ">" + inlineHTML(cell) + "</" + tag + ">")
		}
		out.WriteString("</tr>\n")
	}
	out.WriteString("</table>\n")
	return out.String()
}

// splitTableRow splits on unescaped pipes and unescapes cell values, matching
// the generator's table grammar.
func splitTableRow(row string) []string {
	row = strings.TrimPrefix(row, "|")
	if strings.HasSuffix(row, "|") && !strings.HasSuffix(row, `\|`) {
		row = row[:len(row)-1]
	}

	var cells []string
	var cell strings.Builder
	escaped := false
	for _, r := range row {
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

func isSeparator(cells []string) bool {
	for _, cell := range cells {
		if strings.Trim(cell, ":- ") != "" || !strings.Contains(cell, "-") {
			return false
		}
	}
	return len(cells) > 0
}

func inlineHTML(text string) string {
	escaped := html.EscapeString(text)
	escaped = boldPattern.ReplaceAllString(escaped, "<strong>$1</strong>")
	escaped = italicPattern.ReplaceAllString(escaped, "$1<em>$2</em>")
	return escaped
}
