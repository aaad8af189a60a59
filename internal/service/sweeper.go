package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/draftmind/draftmind/internal/config"
	"github.com/draftmind/draftmind/pkg/icron"
	"github.com/draftmind/draftmind/pkg/log"
)

// RetentionStore is the deletion surface the sweeper needs
type RetentionStore interface {
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper deletes sessions older than the retention window on a cron
// schedule. Overlapping fires collapse into one run.
type Sweeper struct {
	store    RetentionStore
	settings *config.RuntimeSettingsStore
	cron     *cron.Cron
}

func NewSweeper(store RetentionStore, settings *config.RuntimeSettingsStore, c *cron.Cron) *Sweeper {
	return &Sweeper{
		store:    store,
		settings: settings,
		cron:     c,
	}
}

var sweepGroup singleflight.Group

// Schedule registers the sweep on the configured cron expression
func (s *Sweeper) Schedule(ctx context.Context) error {
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		return err
	}

	info, err := icron.GetTriggerInfo(settings.RetentionCron, time.Now().UTC())
	if err != nil {
		return err
	}

	runFunc := func() {
		_, _, _ = sweepGroup.Do("sweep", func() (any, error) {
			s.Sweep(ctx)
			return nil, nil
		})
	}
	if _, err := s.cron.AddFunc(settings.RetentionCron, runFunc); err != nil {
		return err
	}
	log.Info("retention sweep scheduled (%s), next fire at %s", settings.RetentionCron, info.Next.Format(time.RFC3339))
	return nil
}

// Sweep runs one retention pass immediately
func (s *Sweeper) Sweep(ctx context.Context) {
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		log.Error("retention sweep: reading settings failed: %v", err)
		return
	}

	// The cutoff is anchored at the schedule's last fire time, so a
	// manually triggered sweep deletes the same window the scheduled
	// run covered.
	ref := time.Now().UTC()
	if info, err := icron.GetTriggerInfo(settings.RetentionCron, ref); err == nil && !info.Last.IsZero() {
		ref = info.Last
	}

	cutoff := ref.AddDate(0, 0, -settings.RetentionDays)
	deleted, err := s.store.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		log.Error("retention sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Info("retention sweep removed %d sessions older than %s", deleted, cutoff.Format(time.RFC3339))
	}
}
