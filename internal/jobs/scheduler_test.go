package jobs

import (
	"context"
	"testing"
	"time"

	"emutabaah.org/internal/store"
)

type fakeStore struct {
	store.Store

	announcements *fakeAnnouncements
	notifications *fakeNotifications
}

func (f *fakeStore) Announcements() store.AnnouncementStore { return f.announcements }
func (f *fakeStore) Notifications() store.NotificationStore { return f.notifications }

type fakeAnnouncements struct {
	store.AnnouncementStore

	pending  []*store.Announcement
	notified []string
}

func (f *fakeAnnouncements) ListStartedUnnotified(ctx context.Context, now time.Time) ([]*store.Announcement, error) {
	var out []*store.Announcement
	for _, a := range f.pending {
		if a.NotifiedAt == nil && !a.StartsAt.After(now) && !a.EndsAt.Before(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAnnouncements) MarkNotified(ctx context.Context, id string, at time.Time) error {
	f.notified = append(f.notified, id)
	for _, a := range f.pending {
		if a.ID == id {
			t := at
			a.NotifiedAt = &t
		}
	}
	return nil
}

type fakeNotifications struct {
	store.NotificationStore

	recipients map[string][]string // hospital id -> employee ids
	all        []string            // employees receiving global broadcasts
	created    []*store.Notification
}

func (f *fakeNotifications) RecipientsByHospitals(ctx context.Context, hospitalIDs []string) ([]string, error) {
	if len(hospitalIDs) == 0 {
		return f.all, nil
	}
	var out []string
	for _, id := range hospitalIDs {
		out = append(out, f.recipients[id]...)
	}
	return out, nil
}

func (f *fakeNotifications) CreateBatch(ctx context.Context, ns []*store.Notification) error {
	f.created = append(f.created, ns...)
	return nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		announcements: &fakeAnnouncements{},
		notifications: &fakeNotifications{
			recipients: make(map[string][]string),
		},
	}
}

func TestFanOutDeliversScopedAnnouncement(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	fs.announcements.pending = []*store.Announcement{
		{
			ID:         "ANN1",
			Title:      "Kajian",
			Body:       "Kajian rutin dimulai.",
			HospitalID: "H1",
			StartsAt:   now.Add(-time.Hour),
			EndsAt:     now.Add(time.Hour),
		},
	}
	fs.notifications.recipients["H1"] = []string{"E1", "E2"}

	s := New(fs)
	s.now = func() time.Time { return now }
	s.FanOut(context.Background())

	if len(fs.notifications.created) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(fs.notifications.created))
	}
	for _, n := range fs.notifications.created {
		if n.Title != "Kajian" {
			t.Fatalf("notification title mismatch: %q", n.Title)
		}
	}
	if len(fs.announcements.notified) != 1 || fs.announcements.notified[0] != "ANN1" {
		t.Fatalf("announcement not marked notified: %v", fs.announcements.notified)
	}
}

func TestFanOutSkipsFutureAndNotified(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	fs.announcements.pending = []*store.Announcement{
		{ID: "FUTURE", StartsAt: now.Add(time.Hour), EndsAt: now.Add(2 * time.Hour)},
		{ID: "DONE", StartsAt: past, EndsAt: now.Add(time.Hour), NotifiedAt: &past},
	}
	fs.notifications.all = []string{"E1"}

	s := New(fs)
	s.now = func() time.Time { return now }
	s.FanOut(context.Background())

	if len(fs.notifications.created) != 0 {
		t.Fatalf("nothing should be delivered; got %d", len(fs.notifications.created))
	}
	if len(fs.announcements.notified) != 0 {
		t.Fatalf("nothing should be marked; got %v", fs.announcements.notified)
	}
}

func TestFanOutMarksEvenWhenNoRecipients(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	fs.announcements.pending = []*store.Announcement{
		{ID: "EMPTY", HospitalID: "H9", StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour)},
	}

	s := New(fs)
	s.now = func() time.Time { return now }
	s.FanOut(context.Background())

	if len(fs.announcements.notified) != 1 {
		t.Fatalf("empty fan-out must still mark the announcement")
	}
}
