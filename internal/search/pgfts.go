package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"crux/api/internal/analysis"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across cycles and components using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultCycle {
		cycleWhere := "c.fts @@ " + tsQuery
		if q.FilterCycleID != "" {
			cycleWhere += fmt.Sprintf(" AND c.id = $%d", argN)
			args = append(args, q.FilterCycleID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'cycle'::text AS type, c.id, c.title,
				''::text AS snippet,
				c.id AS cycle_id, ''::text AS document_id, ''::text AS kind,
				ts_rank(c.fts, %s) AS rank
			FROM cycles c
			WHERE %s`, tsQuery, cycleWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultSection {
		sectionWhere := "k.fts @@ " + tsQuery
		if q.FilterCycleID != "" {
			sectionWhere += fmt.Sprintf(" AND k.cycle_id = $%d", argN)
			args = append(args, q.FilterCycleID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'section'::text AS type, k.cycle_id || ':' || k.kind AS id, k.kind AS title,
				ts_headline('english', coalesce(k.payload::text, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				k.cycle_id, coalesce(d.id, '') AS document_id, k.kind,
				ts_rank(k.fts, %s) AS rank
			FROM components k
			LEFT JOIN documents d ON d.cycle_id = k.cycle_id
			WHERE %s`, tsQuery, tsQuery, sectionWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, cycle_id, document_id, kind
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.CycleID, &r.DocumentID, &r.Kind); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		if r.Type == ResultSection {
			r.Title = analysis.Kind(r.Kind).Heading()
		}
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]CycleRecord, []SectionRecord, error) {
	cycleRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, status
		FROM cycles
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load cycles: %w", err)
	}
	defer cycleRows.Close()

	cycles := make([]CycleRecord, 0)
	for cycleRows.Next() {
		var c CycleRecord
		if err := cycleRows.Scan(&c.ID, &c.Title, &c.Status); err != nil {
			return nil, nil, fmt.Errorf("scan cycle: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := cycleRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate cycles: %w", err)
	}

	sectionRows, err := p.db.QueryContext(ctx, `
		SELECT k.cycle_id, coalesce(d.id, ''), k.kind, coalesce(k.payload::text, '')
		FROM components k
		LEFT JOIN documents d ON d.cycle_id = k.cycle_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load sections: %w", err)
	}
	defer sectionRows.Close()

	sections := make([]SectionRecord, 0)
	for sectionRows.Next() {
		var s SectionRecord
		if err := sectionRows.Scan(&s.CycleID, &s.DocumentID, &s.Kind, &s.Body); err != nil {
			return nil, nil, fmt.Errorf("scan section: %w", err)
		}
		s.ID = s.DocumentID + ":" + s.Kind
		s.Heading = analysis.Kind(s.Kind).Heading()
		sections = append(sections, s)
	}
	if err := sectionRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate sections: %w", err)
	}

	return cycles, sections, nil
}
