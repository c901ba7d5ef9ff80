// Package lineage manages branched analysis cycles. A branch copies the
// parent document verbatim up to and including a chosen component and starts
// the rest fresh, so alternative decision paths can be explored without
// disturbing the parent.
package lineage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"crux/api/internal/analysis"
	"crux/api/internal/docgen"
	"crux/api/internal/docparse"
	"crux/api/internal/document"
	"crux/api/internal/store"
	"crux/api/internal/util"
)

// ErrInvalidBranchPoint is returned when the requested branch point is not a
// component kind or the parent has not started that component yet.
var ErrInvalidBranchPoint = errors.New("invalid branch point")

// IndexStore is the persistence surface branching needs.
type IndexStore interface {
	GetCycle(ctx context.Context, cycleID string) (store.Cycle, error)
	CreateCycle(ctx context.Context, cycle store.Cycle) error
	ListCycles(ctx context.Context) ([]store.Cycle, error)
	GetDocumentByCycle(ctx context.Context, cycleID string) (store.DocumentIndex, error)
	InsertDocumentIndex(ctx context.Context, item store.DocumentIndex) error
	ListDocumentIndexes(ctx context.Context) ([]store.DocumentIndex, error)
	AppendHistory(ctx context.Context, entry store.HistoryEntry) error
	GetComponents(ctx context.Context, cycleID string) ([]store.ComponentRecord, error)
	UpsertComponent(ctx context.Context, record store.ComponentRecord) error
}

// ContentRepo creates and reads per-document content repositories.
type ContentRepo interface {
	Init(documentID, content, author string) error
	Head(documentID string) (string, store.CommitInfo, error)
}

// Node is one cycle in the lineage tree.
type Node struct {
	CycleID     string  `json:"cycle_id"`
	DocumentID  string  `json:"document_id"`
	Title       string  `json:"title"`
	BranchPoint string  `json:"branch_point,omitempty"`
	Diverged    bool    `json:"diverged"`
	Version     int64   `json:"version"`
	Children    []*Node `json:"children"`
}

type Service struct {
	index   IndexStore
	content ContentRepo
}

func New(index IndexStore, content ContentRepo) *Service {
	return &Service{index: index, content: content}
}

// Branch creates a child cycle from the parent, inheriting document content
// verbatim through the branch-point component. Components after the branch
// point start over as placeholders.
func (s *Service) Branch(ctx context.Context, parentCycleID string, at analysis.Kind, title, actor string) (store.Cycle, store.DocumentIndex, error) {
	if !at.Valid() {
		return store.Cycle{}, store.DocumentIndex{}, fmt.Errorf("%w: unknown component %q", ErrInvalidBranchPoint, at)
	}

	parentCycle, err := s.index.GetCycle(ctx, parentCycleID)
	if err != nil {
		return store.Cycle{}, store.DocumentIndex{}, err
	}
	parentDoc, err := s.index.GetDocumentByCycle(ctx, parentCycleID)
	if err != nil {
		return store.Cycle{}, store.DocumentIndex{}, err
	}
	parentContent, _, err := s.content.Head(parentDoc.ID)
	if err != nil {
		return store.Cycle{}, store.DocumentIndex{}, fmt.Errorf("load parent content: %w", err)
	}

	extraction := docparse.Extract(parentContent)
	branchSegment, ok := extraction.Section(at)
	if !ok || branchSegment.Body == "" || branchSegment.Body == docgen.Placeholder {
		return store.Cycle{}, store.DocumentIndex{}, fmt.Errorf("%w: parent has not started %s", ErrInvalidBranchPoint, at)
	}

	if title == "" {
		title = parentCycle.Title + " (branch at " + at.Heading() + ")"
	}
	content := buildBranchContent(title, extraction, at)

	cycle := store.Cycle{
		ID:     util.NewID("cyc"),
		Title:  title,
		Status: "active",
	}
	if err := s.index.CreateCycle(ctx, cycle); err != nil {
		return store.Cycle{}, store.DocumentIndex{}, err
	}

	doc := store.DocumentIndex{
		ID:          util.NewID("doc"),
		CycleID:     cycle.ID,
		Version:     1,
		Checksum:    document.Checksum(content),
		SyncSource:  string(document.SourceInitial),
		Progress:    inheritedProgress(parentDoc.Progress, at),
		ParentID:    parentDoc.ID,
		BranchPoint: string(at),
	}
	if err := s.content.Init(doc.ID, content, actor); err != nil {
		return store.Cycle{}, store.DocumentIndex{}, fmt.Errorf("init branch content repo: %w", err)
	}
	if err := s.index.InsertDocumentIndex(ctx, doc); err != nil {
		return store.Cycle{}, store.DocumentIndex{}, err
	}
	if err := s.index.AppendHistory(ctx, store.HistoryEntry{
		DocumentID: doc.ID,
		Version:    doc.Version,
		Checksum:   doc.Checksum,
		SyncSource: doc.SyncSource,
		Actor:      actor,
	}); err != nil {
		return store.Cycle{}, store.DocumentIndex{}, err
	}

	if err := s.copyInheritedComponents(ctx, parentCycleID, cycle.ID, at); err != nil {
		return store.Cycle{}, store.DocumentIndex{}, err
	}
	return cycle, doc, nil
}

// Tree reconstructs the lineage forest from parent pointers. Roots are
// documents with no parent; children are ordered by creation time.
func (s *Service) Tree(ctx context.Context) ([]*Node, error) {
	docs, err := s.index.ListDocumentIndexes(ctx)
	if err != nil {
		return nil, err
	}
	cycles, err := s.index.ListCycles(ctx)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(cycles))
	for _, cycle := range cycles {
		titles[cycle.ID] = cycle.Title
	}

	nodes := make(map[string]*Node, len(docs))
	for _, doc := range docs {
		nodes[doc.ID] = &Node{
			CycleID:     doc.CycleID,
			DocumentID:  doc.ID,
			Title:       titles[doc.CycleID],
			BranchPoint: doc.BranchPoint,
			Diverged:    doc.Diverged,
			Version:     doc.Version,
			Children:    []*Node{},
		}
	}

	var roots []*Node
	for _, doc := range docs {
		node := nodes[doc.ID]
		if doc.ParentID == "" {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[doc.ParentID]
		if !ok {
			// Parent record missing; surface the orphan as a root rather
			// than dropping it.
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].CycleID < roots[j].CycleID })
	return roots, nil
}

func (s *Service) copyInheritedComponents(ctx context.Context, parentCycleID, childCycleID string, at analysis.Kind) error {
	records, err := s.index.GetComponents(ctx, parentCycleID)
	if err != nil {
		return err
	}
	point := analysis.Position(at)
	for _, record := range records {
		if analysis.Position(analysis.Kind(record.Kind)) > point {
			continue
		}
		record.CycleID = childCycleID
		record.Origin = ""
		if err := s.index.UpsertComponent(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// buildBranchContent assembles the child document: new title, parent section
// blocks copied byte-for-byte through the branch point, placeholders after.
func buildBranchContent(title string, extraction docparse.Extraction, at analysis.Kind) string {
	point := analysis.Position(at)
	parts := []string{"# " + title}
	for _, kind := range analysis.Order {
		if analysis.Position(kind) <= point {
			if segment, ok := extraction.Section(kind); ok {
				parts = append(parts, strings.Trim(segment.Block, "\n"))
				continue
			}
		}
		parts = append(parts, "## "+kind.Heading(), docgen.Placeholder)
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func inheritedProgress(parent map[string]string, at analysis.Kind) map[string]string {
	progress := make(map[string]string, len(analysis.Order))
	point := analysis.Position(at)
	for _, kind := range analysis.Order {
		if analysis.Position(kind) <= point {
			if state, ok := parent[string(kind)]; ok {
				progress[string(kind)] = state
				continue
			}
		}
		progress[string(kind)] = "pending"
	}
	return progress
}
