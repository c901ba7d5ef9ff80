// Package docparse splits an edited decision document into sections and
// parses each section body back into its typed payload. Parsing is
// partial-tolerant: malformed rows are skipped with a warning so free-text
// placeholders never block the rest of a section, while out-of-range values
// escalate to row-level errors.
package docparse

import (
	"fmt"

	"crux/api/internal/analysis"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Diagnostic describes one extraction or parse finding. Row is the 1-based
// data row within the section table; Column names the offending column for
// cell-level findings.
type Diagnostic struct {
	Severity Severity      `json:"severity"`
	Kind     analysis.Kind `json:"kind,omitempty"`
	Row      int           `json:"row,omitempty"`
	Column   string        `json:"column,omitempty"`
	Message  string        `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Row > 0 && d.Column != "" {
		return fmt.Sprintf("%s: %s row %d column %s: %s", d.Severity, d.Kind, d.Row, d.Column, d.Message)
	}
	if d.Row > 0 {
		return fmt.Sprintf("%s: %s row %d: %s", d.Severity, d.Kind, d.Row, d.Message)
	}
	if d.Kind != "" {
		return fmt.Sprintf("%s: %s: %s", d.Severity, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s", d.Severity, d.Message)
}

// HasErrors reports whether any diagnostic is error severity.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
