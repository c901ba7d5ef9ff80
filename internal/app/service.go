// Package app wires the domain services behind the HTTP surface. The
// Service owns the use cases; HTTPServer translates them to and from JSON.
package app

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"crux/api/internal/analysis"
	"crux/api/internal/docgen"
	"crux/api/internal/docparse"
	"crux/api/internal/document"
	"crux/api/internal/export"
	"crux/api/internal/lineage"
	"crux/api/internal/search"
	"crux/api/internal/store"
	"crux/api/internal/syncer"
	"crux/api/internal/util"
)

// Store is the persistence surface the app service needs. Satisfied by
// store.PostgresStore.
type Store interface {
	Ping(ctx context.Context) error
	CreateCycle(ctx context.Context, cycle store.Cycle) error
	GetCycle(ctx context.Context, cycleID string) (store.Cycle, error)
	ListCycles(ctx context.Context) ([]store.Cycle, error)
	UpdateCycleStatus(ctx context.Context, cycleID, status string) error
	GetDocumentByCycle(ctx context.Context, cycleID string) (store.DocumentIndex, error)
	InsertDocumentIndex(ctx context.Context, item store.DocumentIndex) error
	AppendHistory(ctx context.Context, entry store.HistoryEntry) error
	ListHistory(ctx context.Context, documentID string, limit int) ([]store.HistoryEntry, error)
	GetComponents(ctx context.Context, cycleID string) ([]store.ComponentRecord, error)
}

// ContentRepo is the content repository surface. Satisfied by
// gitrepo.Service.
type ContentRepo interface {
	Init(documentID, content, author string) error
	Commit(documentID, content, author, message string) (store.CommitInfo, error)
	Head(documentID string) (string, store.CommitInfo, error)
	ContentByHash(documentID, hash string) (string, error)
	History(documentID string, limit int) ([]store.CommitInfo, error)
}

type Service struct {
	store       Store
	content     ContentRepo
	coordinator *syncer.Coordinator
	lineage     *lineage.Service
	exporter    *export.Service
	search      *search.Service
	gen         *docgen.Generator
	bus         *analysis.Bus
	syncToken   string
}

func NewService(
	st Store,
	content ContentRepo,
	coordinator *syncer.Coordinator,
	lineageSvc *lineage.Service,
	exporter *export.Service,
	searchSvc *search.Service,
	gen *docgen.Generator,
	bus *analysis.Bus,
	syncToken string,
) *Service {
	s := &Service{
		store:       st,
		content:     content,
		coordinator: coordinator,
		lineage:     lineageSvc,
		exporter:    exporter,
		search:      searchSvc,
		gen:         gen,
		bus:         bus,
		syncToken:   syncToken,
	}
	// Human-edit write-backs are published on the bus and come back around
	// here. The coordinator recognizes its own origin markers and skips
	// them, which is what keeps the edit loop finite.
	bus.Subscribe(func(change analysis.Change) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.coordinator.HandleModelChanged(ctx, change); err != nil {
			log.Printf(`{"level":"error","msg":"apply bus change","cycle_id":"%s","kind":"%s","error":"%v"}`,
				change.CycleID, change.Kind, err)
		}
	})
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SyncToken() string {
	return s.syncToken
}

// Bootstrap seeds an example cycle on an empty database and warms the
// search indexes from Postgres.
func (s *Service) Bootstrap(ctx context.Context) error {
	cycles, err := s.store.ListCycles(ctx)
	if err != nil {
		return err
	}
	if len(cycles) == 0 {
		if _, err := s.CreateCycle(ctx, "Example decision"); err != nil {
			return err
		}
	}
	if s.search != nil {
		s.search.ReindexAllFromPG(ctx)
	}
	return nil
}

// CycleView is the JSON shape for a cycle with its document index.
type CycleView struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Status      string            `json:"status"`
	DocumentID  string            `json:"documentId"`
	Version     int64             `json:"version"`
	Checksum    string            `json:"checksum"`
	SyncSource  string            `json:"syncSource"`
	Progress    map[string]string `json:"progress"`
	ParentID    string            `json:"parentId,omitempty"`
	BranchPoint string            `json:"branchPoint,omitempty"`
	Diverged    bool              `json:"diverged"`
	Archived    bool              `json:"archived"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// DocumentView is the JSON shape for document content plus sync state.
type DocumentView struct {
	CycleID     string            `json:"cycleId"`
	DocumentID  string            `json:"documentId"`
	Content     string            `json:"content"`
	Version     int64             `json:"version"`
	Checksum    string            `json:"checksum"`
	SyncSource  string            `json:"syncSource"`
	Progress    map[string]string `json:"progress"`
	Diverged    bool              `json:"diverged"`
	BranchPoint string            `json:"branchPoint,omitempty"`
}

// CreateCycle starts a new analysis cycle with a placeholder document.
func (s *Service) CreateCycle(ctx context.Context, title string) (CycleView, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return CycleView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}

	content, err := s.gen.Generate(title, analysis.Model{}, docgen.Options{
		Format:               docgen.FormatFull,
		IncludeEmptySections: true,
	})
	if err != nil {
		return CycleView{}, err
	}

	cycle := store.Cycle{ID: util.NewID("cyc"), Title: title, Status: "active"}
	if err := s.store.CreateCycle(ctx, cycle); err != nil {
		return CycleView{}, err
	}

	progress := make(map[string]string, len(analysis.Order))
	for _, kind := range analysis.Order {
		progress[string(kind)] = "pending"
	}
	idx := store.DocumentIndex{
		ID:         util.NewID("doc"),
		CycleID:    cycle.ID,
		Version:    1,
		Checksum:   document.Checksum(content),
		SyncSource: string(document.SourceInitial),
		Progress:   progress,
	}
	if err := s.content.Init(idx.ID, content, "system"); err != nil {
		return CycleView{}, err
	}
	if err := s.store.InsertDocumentIndex(ctx, idx); err != nil {
		return CycleView{}, err
	}
	if err := s.store.AppendHistory(ctx, store.HistoryEntry{
		DocumentID: idx.ID,
		Version:    idx.Version,
		Checksum:   idx.Checksum,
		SyncSource: idx.SyncSource,
		Actor:      "system",
	}); err != nil {
		return CycleView{}, err
	}

	if s.search != nil {
		s.search.IndexCycle(search.CycleRecord{ID: cycle.ID, Title: cycle.Title, Status: cycle.Status})
	}
	return cycleView(cycle, idx), nil
}

// ListCycles returns every cycle with its document index.
func (s *Service) ListCycles(ctx context.Context) ([]CycleView, error) {
	cycles, err := s.store.ListCycles(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]CycleView, 0, len(cycles))
	for _, cycle := range cycles {
		idx, err := s.store.GetDocumentByCycle(ctx, cycle.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			return nil, err
		}
		views = append(views, cycleView(cycle, idx))
	}
	return views, nil
}

// GetCycle returns one cycle with its document index.
func (s *Service) GetCycle(ctx context.Context, cycleID string) (CycleView, error) {
	cycle, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return CycleView{}, err
	}
	idx, err := s.store.GetDocumentByCycle(ctx, cycleID)
	if err != nil {
		return CycleView{}, err
	}
	return cycleView(cycle, idx), nil
}

// GetDocument returns the document for a cycle. Format "raw" (default)
// returns the stored bytes; "summary" renders the short form from the
// model; "full" renders the canonical full form with metadata.
func (s *Service) GetDocument(ctx context.Context, cycleID, format string) (DocumentView, error) {
	content, idx, err := s.coordinator.Content(ctx, cycleID)
	if err != nil {
		return DocumentView{}, err
	}

	switch format {
	case "", "raw":
	case "summary", "full":
		cycle, err := s.store.GetCycle(ctx, cycleID)
		if err != nil {
			return DocumentView{}, err
		}
		model, err := s.loadModel(ctx, cycleID)
		if err != nil {
			return DocumentView{}, err
		}
		docFormat := docgen.FormatFull
		if format == "summary" {
			docFormat = docgen.FormatSummary
		}
		content, err = s.gen.Generate(cycle.Title, model, docgen.Options{
			Format:               docFormat,
			IncludeMetadata:      true,
			IncludeEmptySections: format == "full",
			Status:               cycle.Status,
			Version:              idx.Version,
			Timestamp:            idx.UpdatedAt,
		})
		if err != nil {
			return DocumentView{}, err
		}
	default:
		return DocumentView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be raw, full, or summary", nil)
	}

	return documentView(content, idx), nil
}

// SubmitEdit applies one human edit to a cycle's document.
func (s *Service) SubmitEdit(ctx context.Context, cycleID, content string, expectedVersion int64, actor string) (map[string]any, error) {
	result, err := s.coordinator.SubmitEdit(ctx, syncer.EditRequest{
		CycleID:         cycleID,
		Content:         content,
		ExpectedVersion: expectedVersion,
		Actor:           actor,
	})
	if err != nil {
		if errors.Is(err, syncer.ErrEditRejected) {
			return nil, domainError(http.StatusUnprocessableEntity, "EDIT_REJECTED",
				"Edit contains invalid section data", diagnosticViews(result.Diagnostics))
		}
		return nil, err
	}

	if s.search != nil && !result.NoOp {
		s.indexSections(cycleID, result.Document.ID, content, result.UpdatedKinds)
	}

	kinds := make([]string, 0, len(result.UpdatedKinds))
	for _, kind := range result.UpdatedKinds {
		kinds = append(kinds, string(kind))
	}
	return map[string]any{
		"noop":         result.NoOp,
		"updatedKinds": kinds,
		"diagnostics":  diagnosticViews(result.Diagnostics),
		"document":     documentIndexView(result.Document),
	}, nil
}

// HandleModelChanged applies one structured-model change notification.
func (s *Service) HandleModelChanged(ctx context.Context, change analysis.Change) (map[string]any, error) {
	result, err := s.coordinator.HandleModelChanged(ctx, change)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_CHANGE", err.Error(), nil)
	}
	if result.Skipped {
		return map[string]any{"skipped": true}, nil
	}

	if s.search != nil {
		body, genErr := s.gen.GenerateSection(change.Kind, change.Payload)
		if genErr == nil {
			s.search.IndexSection(search.SectionRecord{
				ID:         result.Document.ID + ":" + string(change.Kind),
				CycleID:    change.CycleID,
				DocumentID: result.Document.ID,
				Kind:       string(change.Kind),
				Heading:    change.Kind.Heading(),
				Body:       body,
			})
		}
	}
	return map[string]any{
		"skipped":  false,
		"document": documentIndexView(result.Document),
	}, nil
}

// Regenerate rebuilds the full document from the persisted model.
func (s *Service) Regenerate(ctx context.Context, cycleID string) (map[string]any, error) {
	cycle, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	result, err := s.coordinator.Regenerate(ctx, cycleID, cycle.Title)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"noop":     result.Skipped,
		"document": documentIndexView(result.Document),
	}, nil
}

// Export renders the document in the requested format.
func (s *Service) Export(ctx context.Context, cycleID, format string) (*export.Result, error) {
	cycle, err := s.store.GetCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	content, idx, err := s.coordinator.Content(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.Request{
		CycleID: cycleID,
		Title:   cycle.Title,
		Content: content,
		Version: idx.Version,
		Format:  export.Format(format),
	})
}

// Branch forks a new cycle from an existing one at a component boundary.
func (s *Service) Branch(ctx context.Context, parentCycleID, at, title, actor string) (CycleView, error) {
	cycle, idx, err := s.lineage.Branch(ctx, parentCycleID, analysis.Kind(at), title, actor)
	if err != nil {
		return CycleView{}, err
	}
	if s.search != nil {
		s.search.IndexCycle(search.CycleRecord{ID: cycle.ID, Title: cycle.Title, Status: cycle.Status})
	}
	return cycleView(cycle, idx), nil
}

// History returns the version history for a cycle's document, newest first.
func (s *Service) History(ctx context.Context, cycleID string, limit int) (map[string]any, error) {
	idx, err := s.store.GetDocumentByCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListHistory(ctx, idx.ID, limit)
	if err != nil {
		return nil, err
	}
	commits, err := s.content.History(idx.ID, limit)
	if err != nil {
		return nil, err
	}

	entryViews := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		entryViews = append(entryViews, map[string]any{
			"version":    entry.Version,
			"checksum":   entry.Checksum,
			"syncSource": entry.SyncSource,
			"actor":      entry.Actor,
			"createdAt":  entry.CreatedAt,
		})
	}
	commitViews := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		commitViews = append(commitViews, map[string]any{
			"hash":      commit.Hash,
			"message":   strings.TrimSpace(commit.Message),
			"author":    commit.Author,
			"createdAt": commit.CreatedAt,
		})
	}
	return map[string]any{
		"documentId": idx.ID,
		"entries":    entryViews,
		"commits":    commitViews,
	}, nil
}

// Compare returns the document bytes at two content commits along with the
// component sections whose bodies differ.
func (s *Service) Compare(ctx context.Context, cycleID, fromHash, toHash string) (map[string]any, error) {
	idx, err := s.store.GetDocumentByCycle(ctx, cycleID)
	if err != nil {
		return nil, err
	}
	fromContent, err := s.content.ContentByHash(idx.ID, fromHash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Unknown content version", nil)
	}
	toContent, err := s.content.ContentByHash(idx.ID, toHash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Unknown content version", nil)
	}

	before := docparse.Extract(fromContent)
	after := docparse.Extract(toContent)
	var changed []string
	for _, kind := range analysis.Order {
		beforeSegment, beforeOK := before.Section(kind)
		afterSegment, afterOK := after.Section(kind)
		if beforeOK != afterOK || beforeSegment.Body != afterSegment.Body {
			changed = append(changed, string(kind))
		}
	}
	return map[string]any{
		"from":            map[string]any{"hash": fromHash, "content": fromContent},
		"to":              map[string]any{"hash": toHash, "content": toContent},
		"changedSections": changed,
	}, nil
}

// Lineage returns the branch forest across all cycles.
func (s *Service) Lineage(ctx context.Context) (map[string]any, error) {
	roots, err := s.lineage.Tree(ctx)
	if err != nil {
		return nil, err
	}
	if roots == nil {
		roots = []*lineage.Node{}
	}
	return map[string]any{"roots": roots}, nil
}

// Search runs a full-text query across cycles and sections.
func (s *Service) Search(ctx context.Context, text, filterType, cycleID string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:          text,
		FilterType:    search.ResultType(filterType),
		FilterCycleID: cycleID,
		Limit:         limit,
		Offset:        offset,
	}), nil
}

// UpdateCycleStatus changes a cycle's lifecycle status.
func (s *Service) UpdateCycleStatus(ctx context.Context, cycleID, status string) error {
	switch status {
	case "active", "decided", "archived":
	default:
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be active, decided, or archived", nil)
	}
	if _, err := s.store.GetCycle(ctx, cycleID); err != nil {
		return err
	}
	return s.store.UpdateCycleStatus(ctx, cycleID, status)
}

func (s *Service) loadModel(ctx context.Context, cycleID string) (analysis.Model, error) {
	records, err := s.store.GetComponents(ctx, cycleID)
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

func (s *Service) indexSections(cycleID, documentID, content string, kinds []analysis.Kind) {
	extraction := docparse.Extract(content)
	for _, kind := range kinds {
		segment, ok := extraction.Section(kind)
		if !ok {
			continue
		}
		s.search.IndexSection(search.SectionRecord{
			ID:         documentID + ":" + string(kind),
			CycleID:    cycleID,
			DocumentID: documentID,
			Kind:       string(kind),
			Heading:    kind.Heading(),
			Body:       segment.Body,
		})
	}
}

func cycleView(cycle store.Cycle, idx store.DocumentIndex) CycleView {
	return CycleView{
		ID:          cycle.ID,
		Title:       cycle.Title,
		Status:      cycle.Status,
		DocumentID:  idx.ID,
		Version:     idx.Version,
		Checksum:    idx.Checksum,
		SyncSource:  idx.SyncSource,
		Progress:    idx.Progress,
		ParentID:    idx.ParentID,
		BranchPoint: idx.BranchPoint,
		Diverged:    idx.Diverged,
		Archived:    idx.Archived,
		UpdatedAt:   idx.UpdatedAt,
	}
}

func documentView(content string, idx store.DocumentIndex) DocumentView {
	return DocumentView{
		CycleID:     idx.CycleID,
		DocumentID:  idx.ID,
		Content:     content,
		Version:     idx.Version,
		Checksum:    idx.Checksum,
		SyncSource:  idx.SyncSource,
		Progress:    idx.Progress,
		Diverged:    idx.Diverged,
		BranchPoint: idx.BranchPoint,
	}
}

func documentIndexView(idx store.DocumentIndex) map[string]any {
	return map[string]any{
		"documentId": idx.ID,
		"cycleId":    idx.CycleID,
		"version":    idx.Version,
		"checksum":   idx.Checksum,
		"syncSource": idx.SyncSource,
		"progress":   idx.Progress,
		"diverged":   idx.Diverged,
	}
}

func diagnosticViews(diags []docparse.Diagnostic) []map[string]any {
	views := make([]map[string]any, 0, len(diags))
	for _, diag := range diags {
		view := map[string]any{
			"severity": string(diag.Severity),
			"message":  diag.Message,
		}
		if diag.Kind != "" {
			view["kind"] = string(diag.Kind)
		}
		if diag.Row > 0 {
			view["row"] = diag.Row
		}
		if diag.Column != "" {
			view["column"] = diag.Column
		}
		views = append(views, view)
	}
	return views
}
