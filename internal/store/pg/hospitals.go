package pg

import (
	"context"
	"database/sql"

	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/store"
)

type hospitalStore struct{ db *sql.DB }

func (s *hospitalStore) Create(ctx context.Context, h *store.Hospital) error {
	if h.ID == "" {
		h.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into hospitals(id, name, city, address) values($1,$2,$3,$4)`,
		h.ID, h.Name, h.City, h.Address,
	)
	return mapError(err)
}

func (s *hospitalStore) Find(ctx context.Context, id string) (*store.Hospital, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, city, address, created_at, updated_at from hospitals where id=$1`, id)
	var h store.Hospital
	if err := row.Scan(&h.ID, &h.Name, &h.City, &h.Address, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return &h, nil
}

func (s *hospitalStore) List(ctx context.Context, idFilter []string) ([]*store.Hospital, error) {
	query := `select id, name, city, address, created_at, updated_at from hospitals`
	var args []any
	if len(idFilter) > 0 {
		query += ` where id = any($1)`
		args = append(args, idFilter)
	}
	query += ` order by name asc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*store.Hospital
	for rows.Next() {
		var h store.Hospital
		if err := rows.Scan(&h.ID, &h.Name, &h.City, &h.Address, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &h)
	}
	return result, rows.Err()
}

func (s *hospitalStore) Update(ctx context.Context, h *store.Hospital) error {
	res, err := s.db.ExecContext(ctx,
		`update hospitals set name=$2, city=$3, address=$4, updated_at=now() where id=$1`,
		h.ID, h.Name, h.City, h.Address,
	)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *hospitalStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from hospitals where id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
