package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists access events.
//
// NOTE: This store assumes the following table exists:
//
//	CREATE TABLE access_events (
//	    id             TEXT PRIMARY KEY,
//	    subject_id     TEXT NOT NULL,
//	    institution_id TEXT NOT NULL DEFAULT '',
//	    department_id  TEXT NOT NULL DEFAULT '',
//	    role           TEXT NOT NULL DEFAULT '',
//	    type           TEXT NOT NULL,
//	    resource       TEXT NOT NULL DEFAULT '',
//	    action         TEXT NOT NULL DEFAULT '',
//	    metadata       JSONB NOT NULL DEFAULT '{}',
//	    created_at     TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX ON access_events (subject_id, created_at DESC);
//	CREATE INDEX ON access_events (institution_id, created_at DESC);
//
// The table is INSERT-only; no UPDATE/DELETE statements exist here.

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const defaultQueryLimit = 1000

func (s *PostgresStore) Append(ctx context.Context, e AccessEvent) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("events: marshal metadata: %w", err)
	}

	const q = `
INSERT INTO access_events (id, subject_id, institution_id, department_id, role, type, resource, action, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	if _, err := s.db.ExecContext(ctx, q,
		e.ID,
		e.SubjectID,
		e.InstitutionID,
		e.DepartmentID,
		e.Role,
		string(e.Type),
		e.Resource,
		e.Action,
		raw,
		e.CreatedAt,
	); err != nil {
		return fmt.Errorf("events: append: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]AccessEvent, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.SubjectID != "" {
		add("subject_id = $%d", f.SubjectID)
	}
	if f.InstitutionID != "" {
		add("institution_id = $%d", f.InstitutionID)
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at <= $%d", f.Until)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	args = append(args, limit)

	q := `
SELECT id, subject_id, institution_id, department_id, role, type, resource, action, metadata, created_at
FROM access_events
`
	if len(conds) > 0 {
		q += "WHERE " + strings.Join(conds, " AND ") + "\n"
	}
	q += fmt.Sprintf("ORDER BY created_at DESC\nLIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("events: query: %w", err)
	}
	defer rows.Close()

	var out []AccessEvent
	for rows.Next() {
		var (
			e       AccessEvent
			typ     string
			raw     []byte
			created time.Time
		)
		if err := rows.Scan(
			&e.ID,
			&e.SubjectID,
			&e.InstitutionID,
			&e.DepartmentID,
			&e.Role,
			&typ,
			&e.Resource,
			&e.Action,
			&raw,
			&created,
		); err != nil {
			return nil, fmt.Errorf("events: scan: %w", err)
		}
		e.Type = EventType(typ)
		e.CreatedAt = created
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("events: unmarshal metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: rows: %w", err)
	}
	return out, nil
}
