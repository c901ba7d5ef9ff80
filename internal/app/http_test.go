package app_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crux/api/internal/analysis"
	"crux/api/internal/app"
	"crux/api/internal/docgen"
	"crux/api/internal/export"
	"crux/api/internal/gitrepo"
	"crux/api/internal/lineage"
	"crux/api/internal/marker"
	"crux/api/internal/store"
	"crux/api/internal/syncer"
)

const testSyncToken = "test-sync-token"

type fakeStore struct {
	cycles     map[string]store.Cycle
	docs       map[string]store.DocumentIndex // keyed by cycle ID
	history    []store.HistoryEntry
	components map[string]store.ComponentRecord
	pingErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cycles:     make(map[string]store.Cycle),
		docs:       make(map[string]store.DocumentIndex),
		components: make(map[string]store.ComponentRecord),
	}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) CreateCycle(_ context.Context, cycle store.Cycle) error {
	f.cycles[cycle.ID] = cycle
	return nil
}

func (f *fakeStore) GetCycle(_ context.Context, cycleID string) (store.Cycle, error) {
	cycle, ok := f.cycles[cycleID]
	if !ok {
		return store.Cycle{}, sql.ErrNoRows
	}
	return cycle, nil
}

func (f *fakeStore) ListCycles(context.Context) ([]store.Cycle, error) {
	var cycles []store.Cycle
	for _, cycle := range f.cycles {
		cycles = append(cycles, cycle)
	}
	return cycles, nil
}

func (f *fakeStore) UpdateCycleStatus(_ context.Context, cycleID, status string) error {
	cycle, ok := f.cycles[cycleID]
	if !ok {
		return sql.ErrNoRows
	}
	cycle.Status = status
	f.cycles[cycleID] = cycle
	return nil
}

func (f *fakeStore) GetDocumentByCycle(_ context.Context, cycleID string) (store.DocumentIndex, error) {
	doc, ok := f.docs[cycleID]
	if !ok {
		return store.DocumentIndex{}, sql.ErrNoRows
	}
	return doc, nil
}

func (f *fakeStore) InsertDocumentIndex(_ context.Context, item store.DocumentIndex) error {
	f.docs[item.CycleID] = item
	return nil
}

func (f *fakeStore) UpdateDocumentIndex(_ context.Context, item store.DocumentIndex, previousVersion int64) error {
	current, ok := f.docs[item.CycleID]
	if !ok {
		return sql.ErrNoRows
	}
	if current.Version != previousVersion {
		return store.ErrStaleWrite
	}
	f.docs[item.CycleID] = item
	return nil
}

func (f *fakeStore) ListDocumentIndexes(context.Context) ([]store.DocumentIndex, error) {
	var docs []store.DocumentIndex
	for _, doc := range f.docs {
		docs = append(docs, doc)
	}
	return docs, nil
}

func (f *fakeStore) AppendHistory(_ context.Context, entry store.HistoryEntry) error {
	f.history = append(f.history, entry)
	return nil
}

func (f *fakeStore) ListHistory(_ context.Context, documentID string, limit int) ([]store.HistoryEntry, error) {
	var entries []store.HistoryEntry
	for i := len(f.history) - 1; i >= 0; i-- {
		if f.history[i].DocumentID != documentID {
			continue
		}
		entries = append(entries, f.history[i])
		if limit > 0 && len(entries) == limit {
			break
		}
	}
	return entries, nil
}

func (f *fakeStore) GetComponents(_ context.Context, cycleID string) ([]store.ComponentRecord, error) {
	var records []store.ComponentRecord
	for _, record := range f.components {
		if record.CycleID == cycleID {
			records = append(records, record)
		}
	}
	return records, nil
}

func (f *fakeStore) UpsertComponent(_ context.Context, record store.ComponentRecord) error {
	f.components[record.CycleID+":"+record.Kind] = record
	return nil
}

type fixture struct {
	handler http.Handler
	store   *fakeStore
	repos   *gitrepo.Service
	markers *marker.MemoryStore
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := newFakeStore()
	repos := gitrepo.New(t.TempDir())
	markers := marker.NewMemoryStore(time.Minute)
	gen := docgen.New()
	bus := analysis.NewBus()
	coordinator := syncer.New(st, repos, markers, gen, bus)
	lineageSvc := lineage.New(st, repos)

	service := app.NewService(st, repos, coordinator, lineageSvc, export.NewService(nil), nil, gen, bus, testSyncToken)
	server := app.NewHTTPServer(service, "*")
	return fixture{handler: server.Handler(), store: st, repos: repos, markers: markers}
}

func (f fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return payload
}

func (f fixture) createCycle(t *testing.T, title string) (cycleID, documentID string) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/cycles", map[string]any{"title": title})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create cycle status = %d, body = %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	return payload["id"].(string), payload["documentId"].(string)
}

func (f fixture) documentContent(t *testing.T, cycleID string) string {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/api/cycles/"+cycleID+"/document", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get document status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return decodeMap(t, rec)["content"].(string)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decodeMap(t, rec)["ok"] != true {
		t.Error("health response not ok")
	}
}

func TestReady(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	f.store.pingErr = errors.New("connection refused")
	rec = f.do(t, http.MethodGet, "/api/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when database is down", rec.Code)
	}
}

func TestCreateCycle(t *testing.T) {
	f := newFixture(t)
	cycleID, documentID := f.createCycle(t, "Queue choice")
	if cycleID == "" || documentID == "" {
		t.Fatal("missing cycle or document id")
	}

	rec := f.do(t, http.MethodGet, "/api/cycles/"+cycleID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get cycle status = %d", rec.Code)
	}
	payload := decodeMap(t, rec)
	if payload["title"] != "Queue choice" || payload["status"] != "active" {
		t.Errorf("cycle = %v", payload)
	}
	if payload["version"].(float64) != 1 {
		t.Errorf("version = %v, want 1", payload["version"])
	}
	progress := payload["progress"].(map[string]any)
	if progress["frame"] != "pending" {
		t.Errorf("progress = %v", progress)
	}

	content := f.documentContent(t, cycleID)
	if !strings.HasPrefix(content, "# Queue choice\n") {
		t.Errorf("content starts with %q", strings.SplitN(content, "\n", 2)[0])
	}
	if !strings.Contains(content, "## Decision Quality\n\n"+docgen.Placeholder) {
		t.Error("placeholder sections missing")
	}
}

func TestCreateCycleRequiresTitle(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/cycles", map[string]any{"title": "   "})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if decodeMap(t, rec)["code"] != "VALIDATION_ERROR" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestGetDocumentInvalidFormat(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")
	rec := f.do(t, http.MethodGet, "/api/cycles/"+cycleID+"/document?format=docx", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestGetDocumentUnknownCycle(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/cycles/cyc_missing/document", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSubmitEdit(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")

	content := f.documentContent(t, cycleID)
	edited := strings.Replace(content,
		"## Objectives\n\n"+docgen.Placeholder,
		"## Objectives\n\n| Objective | Measure |\n| --- | --- |\n| Latency | p99 |",
		1)

	rec := f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/document/edits", map[string]any{
		"content":         edited,
		"expectedVersion": 1,
		"actor":           "alice",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	if payload["noop"] != false {
		t.Error("edit should not be a no-op")
	}
	kinds := payload["updatedKinds"].([]any)
	if len(kinds) != 1 || kinds[0] != "objectives" {
		t.Errorf("updatedKinds = %v", kinds)
	}
	doc := payload["document"].(map[string]any)
	// The bus echoes the write-back; the origin marker stops it, so the edit
	// bumps the version exactly once.
	if doc["version"].(float64) != 2 {
		t.Errorf("version = %v, want 2", doc["version"])
	}
	if doc["syncSource"] != "human_edit" {
		t.Errorf("syncSource = %v", doc["syncSource"])
	}

	if f.documentContent(t, cycleID) != edited {
		t.Error("stored content must match the submitted bytes")
	}
}

func TestSubmitEditVersionConflict(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")

	rec := f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/document/edits", map[string]any{
		"content":         "# Something\n",
		"expectedVersion": 9,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if decodeMap(t, rec)["code"] != "VERSION_CONFLICT" {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSubmitEditRejectedWithDiagnostics(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")

	content := f.documentContent(t, cycleID)
	edited := strings.Replace(content,
		"## Consequences\n\n"+docgen.Placeholder,
		"## Consequences\n\n| Objective | Kafka |\n| --- | --- |\n| Speed | 9 |",
		1)

	rec := f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/document/edits", map[string]any{
		"content":         edited,
		"expectedVersion": 1,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	payload := decodeMap(t, rec)
	if payload["code"] != "EDIT_REJECTED" {
		t.Errorf("code = %v", payload["code"])
	}
	details := payload["details"].([]any)
	if len(details) == 0 {
		t.Fatal("rejection must include diagnostics")
	}
	first := details[0].(map[string]any)
	if first["severity"] != "error" {
		t.Errorf("diagnostic = %v", first)
	}

	if f.documentContent(t, cycleID) != content {
		t.Error("rejected edit must leave the document untouched")
	}
}

func TestSubmitEditRequiresExpectedVersion(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")
	rec := f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/document/edits", map[string]any{
		"content": "# x\n",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestModelChangedRequiresSyncToken(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")

	body := map[string]any{
		"cycleId": cycleID,
		"kind":    "frame",
		"payload": map[string]any{"kind": "frame", "frame": "Pick the queue."},
	}
	rec := f.do(t, http.MethodPost, "/api/internal/model/changed", body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", rec.Code)
	}

	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/api/internal/model/changed", bytes.NewReader(raw))
	req.Header.Set("x-crux-sync-token", testSyncToken)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	payload := decodeMap(t, rr)
	if payload["skipped"] != false {
		t.Errorf("payload = %v", payload)
	}
	doc := payload["document"].(map[string]any)
	if doc["version"].(float64) != 2 {
		t.Errorf("version = %v, want 2", doc["version"])
	}

	content := f.documentContent(t, cycleID)
	if !strings.Contains(content, "## Problem Frame\n\nPick the queue.") {
		t.Error("model change not applied to document")
	}
}

func TestModelChangedSkipsRecordedOrigin(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")
	if err := f.markers.Record(context.Background(), "org_mine"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	raw, _ := json.Marshal(map[string]any{
		"cycleId": cycleID,
		"kind":    "frame",
		"payload": map[string]any{"kind": "frame", "frame": "Echo"},
		"origin":  "org_mine",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/internal/model/changed", bytes.NewReader(raw))
	req.Header.Set("x-crux-sync-token", testSyncToken)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if decodeMap(t, rec)["skipped"] != true {
		t.Error("echoed change must report skipped")
	}
}

func TestBranch(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")

	// Fill the frame so it is a valid branch point.
	raw, _ := json.Marshal(map[string]any{
		"cycleId": cycleID,
		"kind":    "frame",
		"payload": map[string]any{"kind": "frame", "frame": "Pick the queue."},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/internal/model/changed", bytes.NewReader(raw))
	req.Header.Set("x-crux-sync-token", testSyncToken)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("model change status = %d", rr.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/branches", map[string]any{
		"at":    "frame",
		"title": "What about batching",
		"actor": "alice",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	if payload["branchPoint"] != "frame" || payload["title"] != "What about batching" {
		t.Errorf("branch = %v", payload)
	}

	branched := f.documentContent(t, payload["id"].(string))
	if !strings.Contains(branched, "## Problem Frame\n\nPick the queue.") {
		t.Error("branch did not inherit the frame section")
	}

	// Branching at an unstarted component is rejected.
	rec = f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/branches", map[string]any{"at": "tradeoffs"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if decodeMap(t, rec)["code"] != "INVALID_BRANCH_POINT" {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/branches", map[string]any{"title": "no at"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 when at is missing", rec.Code)
	}
}

func TestLineage(t *testing.T) {
	f := newFixture(t)
	f.createCycle(t, "Queue choice")

	rec := f.do(t, http.MethodGet, "/api/lineage", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	roots := decodeMap(t, rec)["roots"].([]any)
	if len(roots) != 1 {
		t.Errorf("len(roots) = %d, want 1", len(roots))
	}
}

func TestUpdateCycleStatus(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")

	rec := f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/status", map[string]any{"status": "decided"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/cycles/"+cycleID, nil)
	if decodeMap(t, rec)["status"] != "decided" {
		t.Error("status update not persisted")
	}

	rec = f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/status", map[string]any{"status": "paused"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 for unknown status", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	cycleID, documentID := f.createCycle(t, "Queue choice")

	content := f.documentContent(t, cycleID)
	edited := strings.Replace(content,
		"## Problem Frame\n\n"+docgen.Placeholder,
		"## Problem Frame\n\nPick the queue.",
		1)
	if rec := f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/document/edits", map[string]any{
		"content": edited, "expectedVersion": 1, "actor": "alice",
	}); rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/api/cycles/"+cycleID+"/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeMap(t, rec)
	if payload["documentId"] != documentID {
		t.Errorf("documentId = %v", payload["documentId"])
	}
	entries := payload["entries"].([]any)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	newest := entries[0].(map[string]any)
	if newest["version"].(float64) != 2 || newest["actor"] != "alice" {
		t.Errorf("newest entry = %v", newest)
	}
	commits := payload["commits"].([]any)
	if len(commits) != 2 {
		t.Fatalf("len(commits) = %d, want 2", len(commits))
	}
}

func TestCompare(t *testing.T) {
	f := newFixture(t)
	cycleID, documentID := f.createCycle(t, "Queue choice")

	content := f.documentContent(t, cycleID)
	edited := strings.Replace(content,
		"## Objectives\n\n"+docgen.Placeholder,
		"## Objectives\n\n| Objective | Measure |\n| --- | --- |\n| Latency | p99 |",
		1)
	if rec := f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/document/edits", map[string]any{
		"content": edited, "expectedVersion": 1,
	}); rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d", rec.Code)
	}

	commits, err := f.repos.History(documentID, 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("len(commits) = %d, want 2", len(commits))
	}

	rec := f.do(t, http.MethodGet,
		"/api/cycles/"+cycleID+"/compare?from="+commits[1].Hash+"&to="+commits[0].Hash, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	payload := decodeMap(t, rec)
	changed := payload["changedSections"].([]any)
	if len(changed) != 1 || changed[0] != "objectives" {
		t.Errorf("changedSections = %v", changed)
	}

	rec = f.do(t, http.MethodGet,
		"/api/cycles/"+cycleID+"/compare?from=0000000&to="+commits[0].Hash, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown hash", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/cycles/"+cycleID+"/compare?from="+commits[0].Hash, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 when to is missing", rec.Code)
	}
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")

	// Sloppy formatting normalizes on regeneration.
	content := f.documentContent(t, cycleID)
	edited := strings.Replace(content,
		"## Objectives\n\n"+docgen.Placeholder,
		"## Objectives\n\n| Objective | Measure |\n| --- | --- |\n|  Latency  |  p99  |",
		1)
	if rec := f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/document/edits", map[string]any{
		"content": edited, "expectedVersion": 1,
	}); rec.Code != http.StatusOK {
		t.Fatalf("edit status = %d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/cycles/"+cycleID+"/document/regenerate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if decodeMap(t, rec)["noop"] != false {
		t.Error("regeneration over sloppy formatting should not be a no-op")
	}
	if !strings.Contains(f.documentContent(t, cycleID), "| Latency | p99 |") {
		t.Error("regenerated content lost model data")
	}
}

func TestExportMarkdown(t *testing.T) {
	f := newFixture(t)
	cycleID, _ := f.createCycle(t, "Queue choice")

	rec := f.do(t, http.MethodGet, "/api/cycles/"+cycleID+"/export", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/markdown") {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "Queue-choice.md") {
		t.Errorf("Content-Disposition = %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "# Queue choice\n") {
		t.Error("export body is not the document")
	}

	rec = f.do(t, http.MethodGet, "/api/cycles/"+cycleID+"/export?format=docx", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 for unsupported format", rec.Code)
	}
}

func TestSearchWithoutBackend(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/search?q=queue", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	payload := decodeMap(t, rec)
	results, ok := payload["results"].([]any)
	if !ok || len(results) != 0 {
		t.Errorf("results = %v", payload["results"])
	}
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
