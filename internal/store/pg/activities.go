package pg

import (
	"context"
	"database/sql"

	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/store"
)

type activityStore struct{ db *sql.DB }

const activityColumns = `id, name, category, target, unit, created_by, created_at, updated_at`

func (s *activityStore) Create(ctx context.Context, a *store.Activity) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into activities(id, name, category, target, unit, created_by) values($1,$2,$3,$4,$5,$6)`,
		a.ID, a.Name, a.Category, a.Target, a.Unit, a.CreatedBy,
	)
	return mapError(err)
}

func (s *activityStore) scan(row interface{ Scan(...any) error }) (*store.Activity, error) {
	var a store.Activity
	err := row.Scan(&a.ID, &a.Name, &a.Category, &a.Target, &a.Unit, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &a, nil
}

func (s *activityStore) Find(ctx context.Context, id string) (*store.Activity, error) {
	return s.scan(s.db.QueryRowContext(ctx,
		`select `+activityColumns+` from activities where id=$1`, id))
}

func (s *activityStore) List(ctx context.Context) ([]*store.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+activityColumns+` from activities order by category, name`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*store.Activity
	for rows.Next() {
		a, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *activityStore) Update(ctx context.Context, a *store.Activity) error {
	res, err := s.db.ExecContext(ctx,
		`update activities set name=$2, category=$3, target=$4, unit=$5, updated_at=now() where id=$1`,
		a.ID, a.Name, a.Category, a.Target, a.Unit,
	)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *activityStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from activities where id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}
