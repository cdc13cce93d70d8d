package pg

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/store"
)

type attendanceStore struct{ db *sql.DB }

// Upsert writes one report keyed (employee, activity, date); a second submit
// for the same key overwrites the first (last write wins, per the store's
// conflict semantics).
func (s *attendanceStore) Upsert(ctx context.Context, a *store.Attendance) error {
	if a.ID == "" {
		a.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into attendance(id, employee_id, activity_id, date, count, notes)
		 values($1,$2,$3,$4,$5,$6)
		 on conflict (employee_id, activity_id, date) do update
		 set count = excluded.count, notes = excluded.notes, updated_at = now()`,
		a.ID, a.EmployeeID, a.ActivityID, a.Date, a.Count, a.Notes,
	)
	return mapError(err)
}

func (s *attendanceStore) List(ctx context.Context, f store.AttendanceFilter) ([]*store.Attendance, error) {
	query := `select a.id, a.employee_id, a.activity_id, a.date, a.count, a.notes, a.created_at, a.updated_at
		 from attendance a`
	var (
		conds []string
		args  []any
	)
	if len(f.HospitalIDs) > 0 {
		query += ` join employees e on e.id = a.employee_id`
		args = append(args, f.HospitalIDs)
		conds = append(conds, "e.hospital_id = any($"+strconv.Itoa(len(args))+")")
	}
	if f.EmployeeID != "" {
		args = append(args, f.EmployeeID)
		conds = append(conds, "a.employee_id = $"+strconv.Itoa(len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, "a.date >= $"+strconv.Itoa(len(args)))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		conds = append(conds, "a.date <= $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += " where " + strings.Join(conds, " and ")
	}
	query += " order by a.date desc, a.activity_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []*store.Attendance
	for rows.Next() {
		var a store.Attendance
		if err := rows.Scan(&a.ID, &a.EmployeeID, &a.ActivityID, &a.Date, &a.Count, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}
