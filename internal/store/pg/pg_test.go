package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/store"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func employeeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "nip", "email", "name", "role", "hospital_id",
		"position", "photo_url", "signature_url", "is_active", "password_hash",
		"created_at", "updated_at",
	})
}

func TestFindByIdentifierLoadsManagedHospitals(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("from employees e join identities i").
		WithArgs("admin@rs.example").
		WillReturnRows(employeeRows().AddRow(
			"emp-1", "1990", "admin@rs.example", "Budi", "admin", "H1",
			"Kepala Unit", "", "", true, "$2a$10$hash",
			now, now,
		))
	mock.ExpectQuery("select hospital_id from admin_hospitals").
		WithArgs("emp-1").
		WillReturnRows(sqlmock.NewRows([]string{"hospital_id"}).AddRow("H1").AddRow("H3"))

	e, err := s.Employees().FindByIdentifier(context.Background(), "admin@rs.example")
	if err != nil {
		t.Fatalf("FindByIdentifier: %v", err)
	}
	if e.Role != policy.RoleAdmin {
		t.Fatalf("unexpected role: %s", e.Role)
	}
	if len(e.ManagedHospitalIDs) != 2 || e.ManagedHospitalIDs[0] != "H1" {
		t.Fatalf("managed hospitals not loaded: %v", e.ManagedHospitalIDs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindEmployeeNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("from employees e join identities i").
		WithArgs("missing").
		WillReturnRows(employeeRows())

	_, err := s.Employees().Find(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateIdentityMapsUniqueViolation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("insert into identities").
		WithArgs(sqlmock.AnyArg(), "dup@rs.example", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "identities_email_key"})

	err := s.Employees().CreateIdentity(context.Background(), &store.Identity{
		Email:        "dup@rs.example",
		PasswordHash: "hash",
	})
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAttendanceUpsertUsesConflictKey(t *testing.T) {
	s, mock := newMockStore(t)

	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec("on conflict \\(employee_id, activity_id, date\\) do update").
		WithArgs(sqlmock.AnyArg(), "emp-1", "act-1", date, 3, "selesai").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Attendance().Upsert(context.Background(), &store.Attendance{
		EmployeeID: "emp-1",
		ActivityID: "act-1",
		Date:       date,
		Count:      3,
		Notes:      "selesai",
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteIdentityReportsMissingRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("delete from identities").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Employees().DeleteIdentity(context.Background(), "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkReadScopedToRecipient(t *testing.T) {
	s, mock := newMockStore(t)

	at := time.Now()
	mock.ExpectExec("update notifications set read_at").
		WithArgs("n1", "emp-1", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Notifications().MarkRead(context.Background(), "n1", "emp-1", at)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign notification, got %v", err)
	}
}
