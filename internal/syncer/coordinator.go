// Package syncer coordinates bidirectional synchronization between the
// structured decision model and the markdown document. Model changes flow in
// through HandleModelChanged and become surgical section rewrites; human
// edits flow in through SubmitEdit and are parsed back into component
// payloads. Origin markers break the cycle between the two directions.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"crux/api/internal/analysis"
	"crux/api/internal/docgen"
	"crux/api/internal/docparse"
	"crux/api/internal/document"
	"crux/api/internal/marker"
	"crux/api/internal/store"
	"crux/api/internal/util"
)

// ErrEditRejected is returned when a submitted edit contains at least one
// error-severity diagnostic. The document is left untouched; the caller gets
// every diagnostic, not just the first.
var ErrEditRejected = errors.New("edit rejected: document contains invalid section data")

// IndexStore is the slice of the persistence layer the coordinator needs.
type IndexStore interface {
	GetDocumentByCycle(ctx context.Context, cycleID string) (store.DocumentIndex, error)
	UpdateDocumentIndex(ctx context.Context, item store.DocumentIndex, previousVersion int64) error
	AppendHistory(ctx context.Context, entry store.HistoryEntry) error
	UpsertComponent(ctx context.Context, record store.ComponentRecord) error
	GetComponents(ctx context.Context, cycleID string) ([]store.ComponentRecord, error)
}

// ContentRepo stores the document bytes themselves.
type ContentRepo interface {
	Commit(documentID, content, author, message string) (store.CommitInfo, error)
	Head(documentID string) (string, store.CommitInfo, error)
}

// SyncResult reports what a model-change notification did to the document.
type SyncResult struct {
	Skipped  bool
	Document store.DocumentIndex
}

// EditRequest is one human edit submission.
type EditRequest struct {
	CycleID         string
	Content         string
	ExpectedVersion int64
	Actor           string
}

// EditResult reports the outcome of an accepted or no-op edit. Diagnostics
// always carries the full parse report, warnings included.
type EditResult struct {
	NoOp         bool
	UpdatedKinds []analysis.Kind
	Diagnostics  []docparse.Diagnostic
	Document     store.DocumentIndex
}

type Coordinator struct {
	index   IndexStore
	content ContentRepo
	markers marker.Store
	gen     *docgen.Generator
	bus     *analysis.Bus
}

func New(index IndexStore, content ContentRepo, markers marker.Store, gen *docgen.Generator, bus *analysis.Bus) *Coordinator {
	return &Coordinator{
		index:   index,
		content: content,
		markers: markers,
		gen:     gen,
		bus:     bus,
	}
}

// HandleModelChanged applies one structured-model change to the cycle's
// document. A change carrying an origin marker this process recorded is an
// echo of its own write-back and is skipped, which terminates the
// human-edit round trip.
func (c *Coordinator) HandleModelChanged(ctx context.Context, change analysis.Change) (SyncResult, error) {
	if change.Origin != "" {
		seen, err := c.markers.Seen(ctx, change.Origin)
		if err != nil {
			return SyncResult{}, fmt.Errorf("check origin marker: %w", err)
		}
		if seen {
			log.Printf(`{"level":"info","msg":"skipping echoed model change","cycle_id":"%s","kind":"%s"}`, change.CycleID, change.Kind)
			return SyncResult{Skipped: true}, nil
		}
	}

	if !change.Kind.Valid() {
		return SyncResult{}, fmt.Errorf("unknown component kind %q", change.Kind)
	}
	change.Payload.Kind = change.Kind
	if err := change.Payload.Validate(); err != nil {
		return SyncResult{}, fmt.Errorf("invalid %s payload: %w", change.Kind, err)
	}

	doc, idx, err := c.loadAggregate(ctx, change.CycleID)
	if err != nil {
		return SyncResult{}, err
	}

	body, err := c.gen.GenerateSection(change.Kind, change.Payload)
	if err != nil {
		return SyncResult{}, err
	}

	previousVersion := doc.Version
	if err := doc.ApplyModelUpdate(change.Kind, body); err != nil {
		if !errors.Is(err, document.ErrSectionNotFound) {
			return SyncResult{}, err
		}
		// A human edit removed the heading. Reinsert the section at its
		// canonical position and apply on the repaired content.
		doc.Content = insertSection(doc.Content, change.Kind)
		if err := doc.ApplyModelUpdate(change.Kind, body); err != nil {
			return SyncResult{}, err
		}
	}

	raw, err := analysis.EncodePayload(change.Payload)
	if err != nil {
		return SyncResult{}, err
	}
	if err := c.index.UpsertComponent(ctx, store.ComponentRecord{
		CycleID: change.CycleID,
		Kind:    string(change.Kind),
		Payload: raw,
		Origin:  change.Origin,
	}); err != nil {
		return SyncResult{}, err
	}

	idx = applyAggregate(idx, doc)
	if change.Payload.Empty() {
		idx.Progress[string(change.Kind)] = "pending"
	} else {
		idx.Progress[string(change.Kind)] = "complete"
	}

	message := fmt.Sprintf("Update %s from model", change.Kind.Heading())
	if err := c.persist(ctx, doc, idx, previousVersion, "model", message); err != nil {
		return SyncResult{}, err
	}
	return SyncResult{Document: idx}, nil
}

// SubmitEdit validates and applies one human edit of the full document text.
// Sections that fail validation reject the whole edit; nothing is written
// until every changed section parses cleanly.
func (c *Coordinator) SubmitEdit(ctx context.Context, req EditRequest) (EditResult, error) {
	doc, idx, err := c.loadAggregate(ctx, req.CycleID)
	if err != nil {
		return EditResult{}, err
	}

	if doc.Archived {
		return EditResult{}, document.ErrArchived
	}
	if req.ExpectedVersion != doc.Version {
		return EditResult{}, fmt.Errorf("%w: expected %d, current %d",
			document.ErrVersionConflict, req.ExpectedVersion, doc.Version)
	}
	if document.Checksum(req.Content) == doc.Checksum {
		return EditResult{NoOp: true, Document: idx}, nil
	}

	before := docparse.Extract(doc.Content)
	after := docparse.Extract(req.Content)

	diagnostics := append([]docparse.Diagnostic(nil), after.Diagnostics...)

	// Parse every changed known section first so a rejection reports the
	// complete picture and leaves the document untouched.
	type parsedSection struct {
		kind    analysis.Kind
		payload analysis.Payload
	}
	var parsed []parsedSection
	for _, segment := range after.Segments {
		if segment.Kind == "" {
			continue
		}
		if previous, ok := before.Section(segment.Kind); ok && previous.Body == segment.Body {
			continue
		}
		payload, diags := docparse.ParseSection(segment.Body, segment.Kind)
		diagnostics = append(diagnostics, diags...)
		if docparse.HasErrors(diags) {
			continue
		}
		if payload == nil {
			payload = &analysis.Payload{Kind: segment.Kind}
		}
		parsed = append(parsed, parsedSection{kind: segment.Kind, payload: *payload})
	}
	if docparse.HasErrors(diagnostics) {
		return EditResult{Diagnostics: diagnostics}, ErrEditRejected
	}

	previousVersion := doc.Version
	changed, err := doc.ApplyHumanEdit(req.Content, req.ExpectedVersion)
	if err != nil {
		return EditResult{}, err
	}
	if !changed {
		return EditResult{NoOp: true, Diagnostics: diagnostics, Document: idx}, nil
	}

	// One marker covers every component this edit writes back. The change
	// stream echoes each write; Seen() recognizes the marker and the
	// coordinator stops the loop after a single round trip.
	origin := util.NewID("org")
	if err := c.markers.Record(ctx, origin); err != nil {
		return EditResult{}, fmt.Errorf("record origin marker: %w", err)
	}

	result := EditResult{Diagnostics: diagnostics}
	for _, section := range parsed {
		raw, err := analysis.EncodePayload(section.payload)
		if err != nil {
			return EditResult{}, err
		}
		if err := c.index.UpsertComponent(ctx, store.ComponentRecord{
			CycleID: req.CycleID,
			Kind:    string(section.kind),
			Payload: raw,
			Origin:  origin,
		}); err != nil {
			return EditResult{}, err
		}
		result.UpdatedKinds = append(result.UpdatedKinds, section.kind)

		if doc.ParentID != "" && !doc.Diverged && inheritedSection(doc.BranchPoint, section.kind) {
			doc.Diverged = true
		}
	}

	idx = applyAggregate(idx, doc)
	for _, section := range parsed {
		if section.payload.Empty() {
			idx.Progress[string(section.kind)] = "pending"
		} else {
			idx.Progress[string(section.kind)] = "complete"
		}
	}

	actor := req.Actor
	if actor == "" {
		actor = "editor"
	}
	if err := c.persist(ctx, doc, idx, previousVersion, actor, "Edit document"); err != nil {
		return EditResult{}, err
	}
	result.Document = idx

	if c.bus != nil {
		for _, section := range parsed {
			c.bus.Publish(analysis.Change{
				CycleID: req.CycleID,
				Kind:    section.kind,
				Payload: section.payload,
				Origin:  origin,
			})
		}
	}
	return result, nil
}

// Regenerate rebuilds the full document from the persisted model. Sections
// with unknown headings are carried over verbatim after the canonical ones,
// so free-form notes survive regeneration.
func (c *Coordinator) Regenerate(ctx context.Context, cycleID, title string) (SyncResult, error) {
	doc, idx, err := c.loadAggregate(ctx, cycleID)
	if err != nil {
		return SyncResult{}, err
	}
	if doc.Archived {
		return SyncResult{}, document.ErrArchived
	}

	model, err := c.loadModel(ctx, cycleID)
	if err != nil {
		return SyncResult{}, err
	}

	rendered, err := c.gen.Generate(title, model, docgen.Options{
		Format:               docgen.FormatFull,
		IncludeEmptySections: true,
	})
	if err != nil {
		return SyncResult{}, err
	}

	current := docparse.Extract(doc.Content)
	var extras []string
	for _, segment := range current.Segments {
		if segment.Kind == "" {
			extras = append(extras, strings.Trim(segment.Block, "\n"))
		}
	}
	if len(extras) > 0 {
		rendered = strings.TrimRight(rendered, "\n") + "\n\n" + strings.Join(extras, "\n\n") + "\n"
	}

	if document.Checksum(rendered) == doc.Checksum {
		return SyncResult{Skipped: true, Document: idx}, nil
	}

	previousVersion := doc.Version
	doc.Content = rendered
	doc.Checksum = document.Checksum(rendered)
	doc.Version++
	doc.SyncSource = document.SourceModel

	idx = applyAggregate(idx, doc)
	if err := c.persist(ctx, doc, idx, previousVersion, "model", "Regenerate document"); err != nil {
		return SyncResult{}, err
	}
	return SyncResult{Document: idx}, nil
}

// Content returns the current document bytes for a cycle.
func (c *Coordinator) Content(ctx context.Context, cycleID string) (string, store.DocumentIndex, error) {
	doc, idx, err := c.loadAggregate(ctx, cycleID)
	if err != nil {
		return "", store.DocumentIndex{}, err
	}
	return doc.Content, idx, nil
}

func (c *Coordinator) loadAggregate(ctx context.Context, cycleID string) (*document.Document, store.DocumentIndex, error) {
	idx, err := c.index.GetDocumentByCycle(ctx, cycleID)
	if err != nil {
		return nil, store.DocumentIndex{}, err
	}
	content, _, err := c.content.Head(idx.ID)
	if err != nil {
		return nil, store.DocumentIndex{}, fmt.Errorf("load document content: %w", err)
	}
	doc := &document.Document{
		ID:          idx.ID,
		CycleID:     idx.CycleID,
		Content:     content,
		Checksum:    idx.Checksum,
		Version:     idx.Version,
		SyncSource:  document.SyncSource(idx.SyncSource),
		ParentID:    idx.ParentID,
		BranchPoint: analysis.Kind(idx.BranchPoint),
		Diverged:    idx.Diverged,
		Archived:    idx.Archived,
	}
	return doc, idx, nil
}

func (c *Coordinator) loadModel(ctx context.Context, cycleID string) (analysis.Model, error) {
	records, err := c.index.GetComponents(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	model := make(analysis.Model, len(records))
	for _, record := range records {
		payload, err := analysis.DecodePayload(analysis.Kind(record.Kind), record.Payload)
		if err != nil {
			return nil, err
		}
		model[payload.Kind] = payload
	}
	return model, nil
}

func (c *Coordinator) persist(ctx context.Context, doc *document.Document, idx store.DocumentIndex, previousVersion int64, actor, message string) error {
	if _, err := c.content.Commit(doc.ID, doc.Content, actor, message); err != nil {
		return fmt.Errorf("commit document content: %w", err)
	}
	if err := c.index.UpdateDocumentIndex(ctx, idx, previousVersion); err != nil {
		return err
	}
	if err := c.index.AppendHistory(ctx, store.HistoryEntry{
		DocumentID: doc.ID,
		Version:    doc.Version,
		Checksum:   doc.Checksum,
		SyncSource: string(doc.SyncSource),
		Actor:      actor,
	}); err != nil {
		return err
	}
	return nil
}

func applyAggregate(idx store.DocumentIndex, doc *document.Document) store.DocumentIndex {
	idx.Version = doc.Version
	idx.Checksum = doc.Checksum
	idx.SyncSource = string(doc.SyncSource)
	idx.Diverged = doc.Diverged
	if idx.Progress == nil {
		idx.Progress = make(map[string]string)
	}
	return idx
}

// inheritedSection reports whether kind falls inside the inherited prefix of
// a branched document, which runs up to and including the branch point.
func inheritedSection(branchPoint analysis.Kind, kind analysis.Kind) bool {
	point := analysis.Position(branchPoint)
	if point < 0 {
		return false
	}
	return analysis.Position(kind) <= point
}

// insertSection adds a placeholder section for kind at its canonical
// position among the sections already present.
func insertSection(content string, kind analysis.Kind) string {
	extraction := docparse.Extract(content)
	block := "## " + kind.Heading() + "\n\n" + docgen.Placeholder + "\n"

	position := analysis.Position(kind)
	insertAt := -1
	offset := len(extraction.Preamble)
	for _, segment := range extraction.Segments {
		if segment.Kind != "" && analysis.Position(segment.Kind) > position {
			insertAt = offset
			break
		}
		offset += len(segment.Block)
	}
	if insertAt < 0 {
		trimmed := strings.TrimRight(content, "\n")
		if trimmed == "" {
			return block
		}
		return trimmed + "\n\n" + block
	}
	return content[:insertAt] + block + "\n" + content[insertAt:]
}
