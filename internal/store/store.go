// Package store defines the persistence model and interfaces for the
// mutabaah service. The concrete Postgres implementation lives in store/pg
// and acts as the elevated-privilege client: handlers reach it only after the
// session, role and scope checks have passed.
package store

import (
	"context"
	"errors"
	"time"

	"emutabaah.org/internal/policy"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Employee joins the identity record (credentials) with the profile record.
// The two are stored separately so registration can roll the identity back
// when profile creation fails.
type Employee struct {
	ID                 string      `json:"id"`
	NIP                string      `json:"nip"`
	Email              string      `json:"email"`
	Name               string      `json:"name"`
	Role               policy.Role `json:"role"`
	HospitalID         string      `json:"hospitalId"`
	Position           string      `json:"position,omitempty"`
	PhotoURL           string      `json:"photoUrl,omitempty"`
	SignatureURL       string      `json:"signatureUrl,omitempty"`
	IsActive           bool        `json:"isActive"`
	ManagedHospitalIDs []string    `json:"managedHospitalIds,omitempty"`
	PasswordHash       string      `json:"-"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// Identity is the credential half of an employee record.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Hospital is a tenant.
type Hospital struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	City      string    `json:"city,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Activity is a devotional-activity definition employees report against.
type Activity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Target    int       `json:"target"`
	Unit      string    `json:"unit,omitempty"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Attendance is one employee's report for one activity on one date. Submits
// are upserts keyed (employee, activity, date); the last write wins.
type Attendance struct {
	ID         string    `json:"id"`
	EmployeeID string    `json:"employeeId"`
	ActivityID string    `json:"activityId"`
	Date       time.Time `json:"date"`
	Count      int       `json:"count"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TeamSession is a scheduled team-attendance gathering owned by its creator.
type TeamSession struct {
	ID         string    `json:"id"`
	HospitalID string    `json:"hospitalId"`
	Title      string    `json:"title"`
	HeldAt     time.Time `json:"heldAt"`
	CreatedBy  string    `json:"createdBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Announcement is scheduled content shown to staff while active.
type Announcement struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	HospitalID string     `json:"hospitalId,omitempty"`
	StartsAt   time.Time  `json:"startsAt"`
	EndsAt     time.Time  `json:"endsAt"`
	CreatedBy  string     `json:"createdBy"`
	NotifiedAt *time.Time `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Notification is a per-employee inbox entry.
type Notification struct {
	ID          string     `json:"id"`
	RecipientID string     `json:"recipientId"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	ReadAt      *time.Time `json:"readAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// EmployeeFilter narrows employee list queries. HospitalIDs is the
// already-intersected visible set; empty means unrestricted (super-admin).
type EmployeeFilter struct {
	HospitalIDs []string
	Role        policy.Role
	Query       string
}

// AttendanceFilter narrows attendance list queries.
type AttendanceFilter struct {
	EmployeeID  string
	HospitalIDs []string
	From        time.Time
	To          time.Time
}

// EmployeeStore manages identities and profiles.
type EmployeeStore interface {
	CreateIdentity(ctx context.Context, id *Identity) error
	DeleteIdentity(ctx context.Context, id string) error
	CreateProfile(ctx context.Context, e *Employee) error
	Find(ctx context.Context, id string) (*Employee, error)
	// FindByIdentifier matches email or NIP and includes the password hash.
	FindByIdentifier(ctx context.Context, identifier string) (*Employee, error)
	List(ctx context.Context, f EmployeeFilter) ([]*Employee, error)
	UpdateProfile(ctx context.Context, e *Employee) error
	UpdateRole(ctx context.Context, id string, role policy.Role) error
	SetActive(ctx context.Context, id string, active bool) error
	Delete(ctx context.Context, id string) error
	ManagedHospitals(ctx context.Context, employeeID string) ([]string, error)
	SetManagedHospitals(ctx context.Context, employeeID string, hospitalIDs []string) error
}

// HospitalStore manages tenants.
type HospitalStore interface {
	Create(ctx context.Context, h *Hospital) error
	Find(ctx context.Context, id string) (*Hospital, error)
	// List returns hospitals restricted to ids; empty ids means all.
	List(ctx context.Context, ids []string) ([]*Hospital, error)
	Update(ctx context.Context, h *Hospital) error
	Delete(ctx context.Context, id string) error
}

// ActivityStore manages the activity catalog.
type ActivityStore interface {
	Create(ctx context.Context, a *Activity) error
	Find(ctx context.Context, id string) (*Activity, error)
	List(ctx context.Context) ([]*Activity, error)
	Update(ctx context.Context, a *Activity) error
	Delete(ctx context.Context, id string) error
}

// AttendanceStore manages activity reports.
type AttendanceStore interface {
	Upsert(ctx context.Context, a *Attendance) error
	List(ctx context.Context, f AttendanceFilter) ([]*Attendance, error)
}

// TeamSessionStore manages team-attendance sessions.
type TeamSessionStore interface {
	Create(ctx context.Context, s *TeamSession) error
	Find(ctx context.Context, id string) (*TeamSession, error)
	List(ctx context.Context, hospitalIDs []string) ([]*TeamSession, error)
	Delete(ctx context.Context, id string) error
}

// AnnouncementStore manages scheduled content.
type AnnouncementStore interface {
	Create(ctx context.Context, a *Announcement) error
	Find(ctx context.Context, id string) (*Announcement, error)
	// List returns announcements visible for hospitalIDs (plus global rows);
	// activeOnly restricts to rows whose window contains now.
	List(ctx context.Context, hospitalIDs []string, activeOnly bool, now time.Time) ([]*Announcement, error)
	Update(ctx context.Context, a *Announcement) error
	Delete(ctx context.Context, id string) error
	// ListStartedUnnotified returns active rows whose fan-out has not run.
	ListStartedUnnotified(ctx context.Context, now time.Time) ([]*Announcement, error)
	MarkNotified(ctx context.Context, id string, at time.Time) error
}

// NotificationStore manages per-employee inboxes.
type NotificationStore interface {
	Create(ctx context.Context, n *Notification) error
	CreateBatch(ctx context.Context, ns []*Notification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]*Notification, error)
	MarkRead(ctx context.Context, id, recipientID string, at time.Time) error
	// RecipientsByHospitals lists employee ids for broadcast fan-out.
	RecipientsByHospitals(ctx context.Context, hospitalIDs []string) ([]string, error)
}

// Store aggregates every persistence concern.
type Store interface {
	Employees() EmployeeStore
	Hospitals() HospitalStore
	Activities() ActivityStore
	Attendance() AttendanceStore
	TeamSessions() TeamSessionStore
	Announcements() AnnouncementStore
	Notifications() NotificationStore
}
