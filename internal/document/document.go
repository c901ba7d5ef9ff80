// Package document holds the document aggregate: the single mutable owner
// of content, checksum, version counter, and sync source for one analysis
// cycle. All accepted writes go through ApplyModelUpdate or ApplyHumanEdit;
// both enforce the aggregate's invariants before any persistence happens.
package document

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"crux/api/internal/analysis"

	"golang.org/x/crypto/blake2b"
)

// SyncSource records which side produced the current content.
type SyncSource string

const (
	SourceInitial SyncSource = "initial"
	SourceModel   SyncSource = "model_update"
	SourceHuman   SyncSource = "human_edit"
)

var (
	ErrVersionConflict = errors.New("document version conflict")
	ErrSectionNotFound = errors.New("section heading not found in document")
	ErrArchived        = errors.New("document is archived")
)

// Document is the aggregate for one analysis cycle's document. Exactly one
// active document exists per cycle.
type Document struct {
	ID          string
	CycleID     string
	Content     string
	Checksum    string
	Version     int64
	SyncSource  SyncSource
	ParentID    string
	BranchPoint analysis.Kind
	Diverged    bool
	Archived    bool
}

// New creates the aggregate for a freshly started cycle at version 1.
func New(id, cycleID, content string) *Document {
	return &Document{
		ID:         id,
		CycleID:    cycleID,
		Content:    content,
		Checksum:   Checksum(content),
		Version:    1,
		SyncSource: SourceInitial,
	}
}

// Checksum returns the hex BLAKE2b-256 digest of content, used for cheap
// equality and change detection.
func Checksum(content string) string {
	sum := blake2b.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ApplyModelUpdate surgically replaces the named section's byte range with
// newBody, leaving every other byte of the document untouched. Fails with
// ErrSectionNotFound when the section heading is absent entirely (the
// generator normally inserts a placeholder on first creation).
func (d *Document) ApplyModelUpdate(kind analysis.Kind, newBody string) error {
	if d.Archived {
		return ErrArchived
	}
	next, err := ReplaceSection(d.Content, kind, newBody)
	if err != nil {
		return err
	}
	d.Content = next
	d.Checksum = Checksum(next)
	d.Version++
	d.SyncSource = SourceModel
	return nil
}

// ApplyHumanEdit replaces the full content after the optimistic-concurrency
// check. Returns false without incrementing when the content checksum is
// unchanged. The raw edited text is stored unmodified so human formatting
// survives exactly.
func (d *Document) ApplyHumanEdit(newContent string, expectedVersion int64) (bool, error) {
	if d.Archived {
		return false, ErrArchived
	}
	if expectedVersion != d.Version {
		return false, fmt.Errorf("%w: expected %d, current %d", ErrVersionConflict, expectedVersion, d.Version)
	}
	checksum := Checksum(newContent)
	if checksum == d.Checksum {
		return false, nil
	}
	d.Content = newContent
	d.Checksum = checksum
	d.Version++
	d.SyncSource = SourceHuman
	return true, nil
}

// ReplaceSection rewrites the body between kind's heading and the next
// top-level heading (or end of document). The replacement keeps one blank
// line after the heading and one before the next section.
func ReplaceSection(content string, kind analysis.Kind, newBody string) (string, error) {
	headingLine := "## " + kind.Heading()

	start, end := -1, len(content)
	offset := 0
	for _, line := range strings.SplitAfter(content, "\n") {
		if start < 0 {
			if strings.TrimRight(line, "\n") == headingLine {
				start = offset
			}
		} else if strings.HasPrefix(line, "## ") {
			end = offset
			break
		}
		offset += len(line)
	}
	if start < 0 {
		return "", fmt.Errorf("%w: %s", ErrSectionNotFound, kind)
	}

	var section strings.Builder
	section.WriteString(headingLine)
	section.WriteString("\n\n")
	section.WriteString(newBody)
	section.WriteString("\n")
	if end < len(content) {
		section.WriteString("\n")
	}

	return content[:start] + section.String() + content[end:], nil
}
