// Package jobs runs the periodic background work: fanning announcements out
// to employee notification inboxes once their window opens.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"emutabaah.org/internal/ids"
	"emutabaah.org/internal/obs"
	"emutabaah.org/internal/store"
)

// Scheduler owns the cron loop.
type Scheduler struct {
	store store.Store
	cron  *cron.Cron
	now   func() time.Time
}

// New builds a scheduler over the store.
func New(st store.Store) *Scheduler {
	return &Scheduler{
		store: st,
		cron:  cron.New(),
		now:   time.Now,
	}
}

// Start registers the hourly fan-out and launches the cron loop. The first
// run fires immediately so a restart never delays pending announcements a
// full hour.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@hourly", func() { s.FanOut(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	go s.FanOut(ctx)
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// FanOut delivers one notification per in-scope employee for every active
// announcement that has not been fanned out yet. Each announcement is marked
// before moving on, so a crash repeats at most one announcement's delivery.
func (s *Scheduler) FanOut(ctx context.Context) {
	now := s.now().UTC()
	pending, err := s.store.Announcements().ListStartedUnnotified(ctx, now)
	if err != nil {
		obs.Error("announcement fan-out query failed", map[string]any{"error": err.Error()})
		return
	}

	for _, ann := range pending {
		var hospitalIDs []string
		if ann.HospitalID != "" {
			hospitalIDs = []string{ann.HospitalID}
		}
		recipients, err := s.store.Notifications().RecipientsByHospitals(ctx, hospitalIDs)
		if err != nil {
			obs.Error("announcement recipient lookup failed", map[string]any{
				"announcement_id": ann.ID,
				"error":           err.Error(),
			})
			continue
		}

		batch := make([]*store.Notification, 0, len(recipients))
		for _, recipientID := range recipients {
			batch = append(batch, &store.Notification{
				ID:          ids.New(),
				RecipientID: recipientID,
				Title:       ann.Title,
				Body:        ann.Body,
			})
		}
		if len(batch) > 0 {
			if err := s.store.Notifications().CreateBatch(ctx, batch); err != nil {
				obs.Error("announcement fan-out write failed", map[string]any{
					"announcement_id": ann.ID,
					"error":           err.Error(),
				})
				continue
			}
		}
		if err := s.store.Announcements().MarkNotified(ctx, ann.ID, now); err != nil {
			obs.Error("announcement mark-notified failed", map[string]any{
				"announcement_id": ann.ID,
				"error":           err.Error(),
			})
			continue
		}
		obs.Info("announcement fanned out", map[string]any{
			"announcement_id": ann.ID,
			"recipients":      len(batch),
		})
	}
}
