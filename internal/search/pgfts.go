package search

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres the API is down anyway.
func (p *PgFTS) Healthy() bool {
	return true
}

const tsQuery = "plainto_tsquery('spanish', $1)"

// buildTaskSearch returns the WHERE clause and its arguments. $1 is always
// the query text.
func buildTaskSearch(q Query) (string, []any) {
	args := []any{q.Text}
	where := []string{"t.search_vector @@ " + tsQuery}
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.AreaID != "" {
		add("t.area_id = $%d", q.AreaID)
	}
	if q.Status != "" {
		add("t.status = $%d", q.Status)
	}
	if q.Restricted {
		add("t.assigned_to @> jsonb_build_array($%d::text)", q.ViewerID)
	}
	return strings.Join(where, " AND "), args
}

// Search ranks tasks with ts_rank and builds snippets with ts_headline.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	where, args := buildTaskSearch(q)

	var total int
	countSQL := "SELECT count(*) FROM tasks t WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT t.id, t.title,
			ts_headline('spanish', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
			t.area_id, t.status, t.priority, t.assigned_to, t.due_at
		FROM tasks t
		WHERE %s
		ORDER BY ts_rank(t.search_vector, %s) DESC, t.due_at, t.id
		LIMIT %d OFFSET %d`, tsQuery, where, tsQuery, q.limit(), q.offset())

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r        Result
			assigned []byte
			dueAt    time.Time
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.AreaID, &r.Status, &r.Priority, &assigned, &dueAt); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		if err := json.Unmarshal(assigned, &r.AssignedTo); err != nil {
			return nil, 0, fmt.Errorf("pgfts assignees: %w", err)
		}
		r.DueAt = dueAtUnix(dueAt)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadTaskRecords returns every task for a full reindex.
func (p *PgFTS) LoadTaskRecords(ctx context.Context) ([]TaskRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, area_id, status, priority, assigned_to, due_at
		FROM tasks
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	defer rows.Close()

	records := make([]TaskRecord, 0)
	for rows.Next() {
		var (
			r        TaskRecord
			assigned []byte
			dueAt    time.Time
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &r.AreaID, &r.Status, &r.Priority, &assigned, &dueAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if err := json.Unmarshal(assigned, &r.AssignedTo); err != nil {
			return nil, fmt.Errorf("decode assignees for %s: %w", r.ID, err)
		}
		r.DueAt = dueAtUnix(dueAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return records, nil
}
