package pg

import (
	"context"
	"database/sql"
	"time"

	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/store"
)

type notificationStore struct{ db *sql.DB }

func (s *notificationStore) Create(ctx context.Context, n *store.Notification) error {
	if n.ID == "" {
		n.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into notifications(id, recipient_id, title, body) values($1,$2,$3,$4)`,
		n.ID, n.RecipientID, n.Title, n.Body,
	)
	return mapError(err)
}

func (s *notificationStore) CreateBatch(ctx context.Context, ns []*store.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range ns {
		if n.ID == "" {
			n.ID = ids.New()
		}
		if _, err := tx.ExecContext(ctx,
			`insert into notifications(id, recipient_id, title, body) values($1,$2,$3,$4)`,
			n.ID, n.RecipientID, n.Title, n.Body); err != nil {
			return mapError(err)
		}
	}
	return tx.Commit()
}

func (s *notificationStore) ListByRecipient(ctx context.Context, recipientID string) ([]*store.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, recipient_id, title, body, read_at, created_at from notifications
		 where recipient_id=$1 order by created_at desc limit 200`, recipientID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*store.Notification
	for rows.Next() {
		var (
			n      store.Notification
			readAt sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Title, &n.Body, &readAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		result = append(result, &n)
	}
	return result, rows.Err()
}

// MarkRead is scoped by recipient so one employee can never acknowledge
// another's notification.
func (s *notificationStore) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update notifications set read_at = coalesce(read_at, $3) where id=$1 and recipient_id=$2`,
		id, recipientID, at)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *notificationStore) RecipientsByHospitals(ctx context.Context, hospitalIDs []string) ([]string, error) {
	query := `select id from employees where is_active`
	var args []any
	if len(hospitalIDs) > 0 {
		query += ` and hospital_id = any($1)`
		args = append(args, hospitalIDs)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
