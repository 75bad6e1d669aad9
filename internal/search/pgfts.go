package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across notes, roadmaps, and resources
// using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.OwnerID == "" {
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
	args := []any{q.Text, q.OwnerID}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultNote {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'note'::text AS type, n.id, n.title,
				ts_headline('english', coalesce(n.body, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				n.owner_id,
				ts_rank(n.fts, %s) AS rank
			FROM notes n
			WHERE n.fts @@ %s AND n.owner_id = $2`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultRoadmap {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'roadmap'::text AS type, r.id, r.title,
				ts_headline('english', coalesce(r.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				r.owner_id,
				ts_rank(r.fts, %s) AS rank
			FROM roadmaps r
			WHERE r.fts @@ %s AND r.owner_id = $2`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultResource {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'resource'::text AS type, rs.id, rs.title,
				ts_headline('english', coalesce(rs.url, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				rs.owner_id,
				ts_rank(rs.fts, %s) AS rank
			FROM resources rs
			WHERE rs.fts @@ %s AND rs.owner_id = $2`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, owner_id
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
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.OwnerID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]NoteRecord, []RoadmapRecord, []ResourceRecord, error) {
	noteRows, err := p.db.QueryContext(ctx, `SELECT id, title, body, owner_id FROM notes`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load notes: %w", err)
	}
	defer noteRows.Close()

	notes := make([]NoteRecord, 0)
	for noteRows.Next() {
		var n NoteRecord
		if err := noteRows.Scan(&n.ID, &n.Title, &n.Body, &n.OwnerID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := noteRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate notes: %w", err)
	}

	roadmapRows, err := p.db.QueryContext(ctx, `SELECT id, title, description, owner_id FROM roadmaps`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load roadmaps: %w", err)
	}
	defer roadmapRows.Close()

	roadmaps := make([]RoadmapRecord, 0)
	for roadmapRows.Next() {
		var r RoadmapRecord
		if err := roadmapRows.Scan(&r.ID, &r.Title, &r.Description, &r.OwnerID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan roadmap: %w", err)
		}
		roadmaps = append(roadmaps, r)
	}
	if err := roadmapRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate roadmaps: %w", err)
	}

	resourceRows, err := p.db.QueryContext(ctx, `SELECT id, title, url, owner_id FROM resources`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load resources: %w", err)
	}
	defer resourceRows.Close()

	resources := make([]ResourceRecord, 0)
	for resourceRows.Next() {
		var r ResourceRecord
		if err := resourceRows.Scan(&r.ID, &r.Title, &r.URL, &r.OwnerID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	if err := resourceRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate resources: %w", err)
	}

	return notes, roadmaps, resources, nil
}
