package document

import (
	"errors"
	"strings"
	"testing"

	"crux/api/internal/analysis"
)

const baseContent = "# Queue choice\n\n" +
	"## Problem Frame\n\nChoose a queueing backbone.\n\n" +
	"## Objectives\n\n_Not started._\n\n" +
	"## Recommendation\n\n_Not started._\n"

func TestNewDocument(t *testing.T) {
	doc := New("doc_1", "cyc_1", baseContent)
	if doc.Version != 1 {
		t.Errorf("Version = %d, want 1", doc.Version)
	}
	if doc.SyncSource != SourceInitial {
		t.Errorf("SyncSource = %q, want initial", doc.SyncSource)
	}
	if doc.Checksum != Checksum(baseContent) {
		t.Error("Checksum does not match content")
	}
}

func TestApplyModelUpdateIsSurgical(t *testing.T) {
	doc := New("doc_1", "cyc_1", baseContent)
	newBody := "| Objective | Measure |\n| --- | --- |\n| Latency | p99 |"

	if err := doc.ApplyModelUpdate(analysis.KindObjectives, newBody); err != nil {
		t.Fatalf("ApplyModelUpdate() error = %v", err)
	}

	if doc.Version != 2 {
		t.Errorf("Version = %d, want 2", doc.Version)
	}
	if doc.SyncSource != SourceModel {
		t.Errorf("SyncSource = %q, want model_update", doc.SyncSource)
	}
	if !strings.Contains(doc.Content, "## Objectives\n\n"+newBody+"\n") {
		t.Error("objectives section not replaced")
	}
	// Every other byte stays put.
	if !strings.Contains(doc.Content, "## Problem Frame\n\nChoose a queueing backbone.\n\n") {
		t.Error("frame section disturbed by objectives update")
	}
	if !strings.Contains(doc.Content, "## Recommendation\n\n_Not started._\n") {
		t.Error("recommendation section disturbed by objectives update")
	}
}

func TestApplyModelUpdateLastSection(t *testing.T) {
	doc := New("doc_1", "cyc_1", baseContent)
	if err := doc.ApplyModelUpdate(analysis.KindRecommendation, "**Choice:** NATS"); err != nil {
		t.Fatalf("ApplyModelUpdate() error = %v", err)
	}
	if !strings.HasSuffix(doc.Content, "## Recommendation\n\n**Choice:** NATS\n") {
		t.Errorf("content tail = %q", doc.Content[len(doc.Content)-60:])
	}
}

func TestApplyModelUpdateMissingSection(t *testing.T) {
	doc := New("doc_1", "cyc_1", baseContent)
	err := doc.ApplyModelUpdate(analysis.KindQuality, "| Element | Score |")
	if !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("ApplyModelUpdate() error = %v, want ErrSectionNotFound", err)
	}
	if doc.Version != 1 {
		t.Error("failed update must not bump the version")
	}
}

func TestApplyHumanEditVersionConflict(t *testing.T) {
	doc := New("doc_1", "cyc_1", baseContent)
	_, err := doc.ApplyHumanEdit(baseContent+"\nmore\n", 99)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("ApplyHumanEdit() error = %v, want ErrVersionConflict", err)
	}
}

func TestApplyHumanEditUnchangedContentIsNoOp(t *testing.T) {
	doc := New("doc_1", "cyc_1", baseContent)
	changed, err := doc.ApplyHumanEdit(baseContent, 1)
	if err != nil {
		t.Fatalf("ApplyHumanEdit() error = %v", err)
	}
	if changed {
		t.Error("identical content should be a no-op")
	}
	if doc.Version != 1 {
		t.Errorf("Version = %d, want 1 after no-op", doc.Version)
	}
}

func TestApplyHumanEditPreservesRawText(t *testing.T) {
	doc := New("doc_1", "cyc_1", baseContent)
	edited := strings.Replace(baseContent, "Choose a queueing backbone.", "Choose a   queueing backbone!  ", 1)

	changed, err := doc.ApplyHumanEdit(edited, 1)
	if err != nil {
		t.Fatalf("ApplyHumanEdit() error = %v", err)
	}
	if !changed {
		t.Fatal("edit with new content should report changed")
	}
	if doc.Content != edited {
		t.Error("human formatting must be stored byte for byte")
	}
	if doc.Version != 2 || doc.SyncSource != SourceHuman {
		t.Errorf("Version = %d, SyncSource = %q", doc.Version, doc.SyncSource)
	}
}

func TestArchivedDocumentRejectsWrites(t *testing.T) {
	doc := New("doc_1", "cyc_1", baseContent)
	doc.Archived = true

	if err := doc.ApplyModelUpdate(analysis.KindFrame, "x"); !errors.Is(err, ErrArchived) {
		t.Errorf("ApplyModelUpdate() error = %v, want ErrArchived", err)
	}
	if _, err := doc.ApplyHumanEdit("y", 1); !errors.Is(err, ErrArchived) {
		t.Errorf("ApplyHumanEdit() error = %v, want ErrArchived", err)
	}
}

func TestReplaceSectionKeepsSpacing(t *testing.T) {
	next, err := ReplaceSection(baseContent, analysis.KindObjectives, "new body")
	if err != nil {
		t.Fatalf("ReplaceSection() error = %v", err)
	}
	if !strings.Contains(next, "## Objectives\n\nnew body\n\n## Recommendation") {
		t.Errorf("section boundary spacing broken:\n%s", next)
	}
}
