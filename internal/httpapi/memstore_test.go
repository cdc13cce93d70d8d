package httpapi

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"emutabaah.org/internal/policy"
	"emutabaah.org/internal/store"
)

// memStore is an in-memory store.Store for handler tests.
type memStore struct {
	mu            sync.Mutex
	identities    map[string]*store.Identity
	employees     map[string]*store.Employee
	managed       map[string][]string
	hospitals     map[string]*store.Hospital
	activities    map[string]*store.Activity
	attendance    map[string]*store.Attendance
	teamSessions  map[string]*store.TeamSession
	announcements map[string]*store.Announcement
	notifications map[string]*store.Notification
}

func newMemStore() *memStore {
	return &memStore{
		identities:    make(map[string]*store.Identity),
		employees:     make(map[string]*store.Employee),
		managed:       make(map[string][]string),
		hospitals:     make(map[string]*store.Hospital),
		activities:    make(map[string]*store.Activity),
		attendance:    make(map[string]*store.Attendance),
		teamSessions:  make(map[string]*store.TeamSession),
		announcements: make(map[string]*store.Announcement),
		notifications: make(map[string]*store.Notification),
	}
}

func (m *memStore) Employees() store.EmployeeStore         { return (*memEmployees)(m) }
func (m *memStore) Hospitals() store.HospitalStore         { return (*memHospitals)(m) }
func (m *memStore) Activities() store.ActivityStore        { return (*memActivities)(m) }
func (m *memStore) Attendance() store.AttendanceStore      { return (*memAttendance)(m) }
func (m *memStore) TeamSessions() store.TeamSessionStore   { return (*memTeamSessions)(m) }
func (m *memStore) Announcements() store.AnnouncementStore { return (*memAnnouncements)(m) }
func (m *memStore) Notifications() store.NotificationStore { return (*memNotifications)(m) }

func (m *memStore) identityCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.identities)
}

func (m *memStore) employeeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.employees)
}

type memEmployees memStore

func (m *memEmployees) CreateIdentity(ctx context.Context, id *store.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.identities {
		if existing.Email == id.Email {
			return store.ErrAlreadyExists
		}
	}
	cp := *id
	cp.CreatedAt = time.Now().UTC()
	m.identities[id.ID] = &cp
	return nil
}

func (m *memEmployees) DeleteIdentity(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.identities[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.identities, id)
	delete(m.employees, id)
	return nil
}

func (m *memEmployees) CreateProfile(ctx context.Context, e *store.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.employees {
		if existing.NIP == e.NIP {
			return store.ErrAlreadyExists
		}
	}
	ident, ok := m.identities[e.ID]
	if !ok {
		return store.ErrNotFound
	}
	cp := *e
	cp.PasswordHash = ident.PasswordHash
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.employees[e.ID] = &cp
	return nil
}

func (m *memEmployees) find(id string) (*store.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *e
	cp.ManagedHospitalIDs = append([]string(nil), m.managed[id]...)
	return &cp, nil
}

func (m *memEmployees) Find(ctx context.Context, id string) (*store.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(id)
}

func (m *memEmployees) FindByIdentifier(ctx context.Context, identifier string) (*store.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	for id, e := range m.employees {
		if strings.ToLower(e.Email) == identifier || e.NIP == identifier {
			return m.find(id)
		}
	}
	return nil, store.ErrNotFound
}

func (m *memEmployees) List(ctx context.Context, f store.EmployeeFilter) ([]*store.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Employee
	for id, e := range m.employees {
		if len(f.HospitalIDs) > 0 && !contains(f.HospitalIDs, e.HospitalID) {
			continue
		}
		if f.Role != "" && e.Role != f.Role {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(e.Name), strings.ToLower(f.Query)) {
			continue
		}
		cp, _ := m.find(id)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memEmployees) UpdateProfile(ctx context.Context, e *store.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.employees[e.ID]
	if !ok {
		return store.ErrNotFound
	}
	cp := *e
	cp.PasswordHash = existing.PasswordHash
	cp.Role = existing.Role
	cp.UpdatedAt = time.Now().UTC()
	m.employees[e.ID] = &cp
	return nil
}

func (m *memEmployees) UpdateRole(ctx context.Context, id string, role policy.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Role = role
	return nil
}

func (m *memEmployees) SetActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.employees[id]
	if !ok {
		return store.ErrNotFound
	}
	e.IsActive = active
	return nil
}

func (m *memEmployees) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.employees[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.employees, id)
	delete(m.identities, id)
	delete(m.managed, id)
	return nil
}

func (m *memEmployees) ManagedHospitals(ctx context.Context, employeeID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.managed[employeeID]...), nil
}

func (m *memEmployees) SetManagedHospitals(ctx context.Context, employeeID string, hospitalIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.employees[employeeID]; !ok {
		return store.ErrNotFound
	}
	m.managed[employeeID] = append([]string(nil), hospitalIDs...)
	return nil
}

type memHospitals memStore

func (m *memHospitals) Create(ctx context.Context, h *store.Hospital) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.hospitals[h.ID] = &cp
	return nil
}

func (m *memHospitals) Find(ctx context.Context, id string) (*store.Hospital, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hospitals[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (m *memHospitals) List(ctx context.Context, ids []string) ([]*store.Hospital, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Hospital
	for _, h := range m.hospitals {
		if len(ids) > 0 && !contains(ids, h.ID) {
			continue
		}
		cp := *h
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memHospitals) Update(ctx context.Context, h *store.Hospital) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hospitals[h.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *h
	m.hospitals[h.ID] = &cp
	return nil
}

func (m *memHospitals) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.hospitals[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.hospitals, id)
	return nil
}

type memActivities memStore

func (m *memActivities) Create(ctx context.Context, a *store.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.activities[a.ID] = &cp
	return nil
}

func (m *memActivities) Find(ctx context.Context, id string) (*store.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memActivities) List(ctx context.Context) ([]*store.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Activity
	for _, a := range m.activities {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memActivities) Update(ctx context.Context, a *store.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.activities[a.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *a
	m.activities[a.ID] = &cp
	return nil
}

func (m *memActivities) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.activities[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.activities, id)
	return nil
}

type memAttendance memStore

func attendanceKey(a *store.Attendance) string {
	return a.EmployeeID + "|" + a.ActivityID + "|" + a.Date.Format("2006-01-02")
}

func (m *memAttendance) Upsert(ctx context.Context, a *store.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := attendanceKey(a)
	if existing, ok := m.attendance[key]; ok {
		existing.Count = a.Count
		existing.Notes = a.Notes
		existing.UpdatedAt = time.Now().UTC()
		*a = *existing
		return nil
	}
	cp := *a
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	m.attendance[key] = &cp
	return nil
}

func (m *memAttendance) List(ctx context.Context, f store.AttendanceFilter) ([]*store.Attendance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Attendance
	for _, a := range m.attendance {
		if f.EmployeeID != "" && a.EmployeeID != f.EmployeeID {
			continue
		}
		if len(f.HospitalIDs) > 0 {
			emp, ok := m.employees[a.EmployeeID]
			if !ok || !contains(f.HospitalIDs, emp.HospitalID) {
				continue
			}
		}
		if !f.From.IsZero() && a.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.Date.After(f.To) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memTeamSessions memStore

func (m *memTeamSessions) Create(ctx context.Context, s *store.TeamSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.teamSessions[s.ID] = &cp
	return nil
}

func (m *memTeamSessions) Find(ctx context.Context, id string) (*store.TeamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.teamSessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memTeamSessions) List(ctx context.Context, hospitalIDs []string) ([]*store.TeamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.TeamSession
	for _, s := range m.teamSessions {
		if len(hospitalIDs) > 0 && !contains(hospitalIDs, s.HospitalID) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memTeamSessions) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teamSessions[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.teamSessions, id)
	return nil
}

type memAnnouncements memStore

func (m *memAnnouncements) Create(ctx context.Context, a *store.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.announcements[a.ID] = &cp
	return nil
}

func (m *memAnnouncements) Find(ctx context.Context, id string) (*store.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.announcements[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAnnouncements) List(ctx context.Context, hospitalIDs []string, activeOnly bool, now time.Time) ([]*store.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Announcement
	for _, a := range m.announcements {
		if len(hospitalIDs) > 0 && a.HospitalID != "" && !contains(hospitalIDs, a.HospitalID) {
			continue
		}
		if activeOnly && (a.StartsAt.After(now) || a.EndsAt.Before(now)) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAnnouncements) Update(ctx context.Context, a *store.Announcement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.announcements[a.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *a
	m.announcements[a.ID] = &cp
	return nil
}

func (m *memAnnouncements) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.announcements[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.announcements, id)
	return nil
}

func (m *memAnnouncements) ListStartedUnnotified(ctx context.Context, now time.Time) ([]*store.Announcement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Announcement
	for _, a := range m.announcements {
		if a.NotifiedAt != nil {
			continue
		}
		if a.StartsAt.After(now) || a.EndsAt.Before(now) {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAnnouncements) MarkNotified(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.announcements[id]
	if !ok {
		return store.ErrNotFound
	}
	at = at.UTC()
	a.NotifiedAt = &at
	return nil
}

type memNotifications memStore

func (m *memNotifications) Create(ctx context.Context, n *store.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	cp.CreatedAt = time.Now().UTC()
	m.notifications[n.ID] = &cp
	return nil
}

func (m *memNotifications) CreateBatch(ctx context.Context, ns []*store.Notification) error {
	for _, n := range ns {
		if err := m.Create(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

func (m *memNotifications) ListByRecipient(ctx context.Context, recipientID string) ([]*store.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Notification
	for _, n := range m.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memNotifications) MarkRead(ctx context.Context, id, recipientID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return store.ErrNotFound
	}
	if n.ReadAt == nil {
		at = at.UTC()
		n.ReadAt = &at
	}
	return nil
}

func (m *memNotifications) RecipientsByHospitals(ctx context.Context, hospitalIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, e := range m.employees {
		if !e.IsActive {
			continue
		}
		if len(hospitalIDs) > 0 && !contains(hospitalIDs, e.HospitalID) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
