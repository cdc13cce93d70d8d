package pg

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/store"
)

type announcementStore struct{ db *sql.DB }

const announcementColumns = `id, title, body, hospital_id, starts_at, ends_at, created_by, notified_at, created_at, updated_at`

func (s *announcementStore) Create(ctx context.Context, a *store.Announcement) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into announcements(id, title, body, hospital_id, starts_at, ends_at, created_by)
		 values($1,$2,$3,nullif($4,''),$5,$6,$7)`,
		a.ID, a.Title, a.Body, a.HospitalID, a.StartsAt, a.EndsAt, a.CreatedBy,
	)
	return mapError(err)
}

func (s *announcementStore) scan(row interface{ Scan(...any) error }) (*store.Announcement, error) {
	var (
		a          store.Announcement
		hospitalID sql.NullString
		notifiedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Title, &a.Body, &hospitalID, &a.StartsAt, &a.EndsAt,
		&a.CreatedBy, &notifiedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	a.HospitalID = hospitalID.String
	if notifiedAt.Valid {
		t := notifiedAt.Time
		a.NotifiedAt = &t
	}
	return &a, nil
}

func (s *announcementStore) Find(ctx context.Context, id string) (*store.Announcement, error) {
	return s.scan(s.db.QueryRowContext(ctx,
		`select `+announcementColumns+` from announcements where id=$1`, id))
}

func (s *announcementStore) List(ctx context.Context, hospitalIDs []string, activeOnly bool, now time.Time) ([]*store.Announcement, error) {
	query := `select ` + announcementColumns + ` from announcements`
	var (
		conds []string
		args  []any
	)
	if len(hospitalIDs) > 0 {
		args = append(args, hospitalIDs)
		// Global announcements (null hospital) are visible to everyone.
		conds = append(conds, "(hospital_id is null or hospital_id = any($"+strconv.Itoa(len(args))+"))")
	}
	if activeOnly {
		args = append(args, now)
		n := strconv.Itoa(len(args))
		conds = append(conds, "starts_at <= $"+n+" and ends_at >= $"+n)
	}
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by starts_at desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*store.Announcement
	for rows.Next() {
		a, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *announcementStore) Update(ctx context.Context, a *store.Announcement) error {
	res, err := s.db.ExecContext(ctx,
		`update announcements set title=$2, body=$3, hospital_id=nullif($4,''), starts_at=$5, ends_at=$6, updated_at=now()
		 where id=$1`,
		a.ID, a.Title, a.Body, a.HospitalID, a.StartsAt, a.EndsAt,
	)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *announcementStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from announcements where id=$1`, id)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *announcementStore) ListStartedUnnotified(ctx context.Context, now time.Time) ([]*store.Announcement, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+announcementColumns+` from announcements
		 where notified_at is null and starts_at <= $1 and ends_at >= $1
		 order by starts_at asc`, now)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*store.Announcement
	for rows.Next() {
		a, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *announcementStore) MarkNotified(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update announcements set notified_at=$2 where id=$1 and notified_at is null`, id, at)
	return mapError(err)
}
