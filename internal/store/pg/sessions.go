package pg

import (
	"context"
	"database/sql"

	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/store"
)

type teamSessionStore struct{ db *sql.DB }

func (s *teamSessionStore) Create(ctx context.Context, ts *store.TeamSession) error {
	if ts.ID == "" {
		ts.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into team_sessions(id, hospital_id, title, held_at, created_by) values($1,$2,$3,$4,$5)`,
		ts.ID, ts.HospitalID, ts.Title, ts.HeldAt, ts.CreatedBy,
	)
	return mapError(err)
}

func (s *teamSessionStore) Find(ctx context.Context, id string) (*store.TeamSession, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, hospital_id, title, held_at, created_by, created_at from team_sessions where id=$1`, id)
	var ts store.TeamSession
	if err := row.Scan(&ts.ID, &ts.HospitalID, &ts.Title, &ts.HeldAt, &ts.CreatedBy, &ts.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return &ts, nil
}

func (s *teamSessionStore) List(ctx context.Context, hospitalIDs []string) ([]*store.TeamSession, error) {
	query := `select id, hospital_id, title, held_at, created_by, created_at from team_sessions`
	var args []any
	if len(hospitalIDs) > 0 {
		query += ` where hospital_id = any($1)`
		args = append(args, hospitalIDs)
	}
	query += ` order by held_at desc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*store.TeamSession
	for rows.Next() {
		var ts store.TeamSession
		if err := rows.Scan(&ts.ID, &ts.HospitalID, &ts.Title, &ts.HeldAt, &ts.CreatedBy, &ts.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &ts)
	}
	return result, rows.Err()
}

func (s *teamSessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from team_sessions where id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
