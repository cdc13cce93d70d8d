// Package pg implements store.Store on PostgreSQL. The connection it wraps
// authenticates as the service role and bypasses row-level security, so it
// must only be reached after the handler-level authorization sequence.
package pg

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jackc/pgx/v5/pgconn"

	"emutabaah.org/internal/store"
)

// Store implements store.Store over a single *sql.DB.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open connects with the pgx stdlib driver and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing connection, used by tests with sqlmock.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for readiness pings.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Employees() store.EmployeeStore         { return &employeeStore{db: s.db} }
func (s *Store) Hospitals() store.HospitalStore         { return &hospitalStore{db: s.db} }
func (s *Store) Activities() store.ActivityStore        { return &activityStore{db: s.db} }
func (s *Store) Attendance() store.AttendanceStore      { return &attendanceStore{db: s.db} }
func (s *Store) TeamSessions() store.TeamSessionStore   { return &teamSessionStore{db: s.db} }
func (s *Store) Announcements() store.AnnouncementStore { return &announcementStore{db: s.db} }
func (s *Store) Notifications() store.NotificationStore { return &notificationStore{db: s.db} }

// mapError translates driver errors into the store sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return store.ErrAlreadyExists
	}
	return err
}
