package services

import (
	"context"
	"errors"
	"log"
	"time"
)

// Scheduler fires the recurring refresh jobs: pricing daily at 03:00 and
// metadata every Sunday at 02:00, both in the configured local zone. A
// tick that lands while the same category is still running is skipped, not
// queued; the next scheduled slot picks the work back up.
type Scheduler struct {
	pricing  *PricingRefreshService
	metadata *MetadataRefreshService
	loc      *time.Location
}

const (
	pricingHour     = 3
	metadataHour    = 2
	metadataWeekday = time.Sunday
)

func NewScheduler(pricing *PricingRefreshService, metadata *MetadataRefreshService, loc *time.Location) *Scheduler {
	return &Scheduler{pricing: pricing, metadata: metadata, loc: loc}
}

// nextDailyRun returns the next instant at hour o'clock local time that is
// strictly after now.
func nextDailyRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// nextWeeklyRun returns the next instant on the given weekday at hour
// o'clock local time that is strictly after now.
func nextWeeklyRun(now time.Time, weekday time.Weekday, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	days := (int(weekday) - int(next.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, days)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// Run blocks until ctx is done, firing jobs at their scheduled times.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("Scheduler: started (zone %s)", s.loc)

	pricingTimer := time.NewTimer(time.Until(nextDailyRun(time.Now(), pricingHour, s.loc)))
	defer pricingTimer.Stop()
	metadataTimer := time.NewTimer(time.Until(nextWeeklyRun(time.Now(), metadataWeekday, metadataHour, s.loc)))
	defer metadataTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler: stopped")
			return

		case <-pricingTimer.C:
			if _, err := s.pricing.Trigger("scheduled", nil); err != nil {
				if errors.Is(err, ErrJobAlreadyRunning) {
					log.Println("Scheduler: pricing job still running, skipping this slot")
				} else {
					log.Printf("Scheduler: pricing trigger failed: %v", err)
				}
			}
			pricingTimer.Reset(time.Until(nextDailyRun(time.Now(), pricingHour, s.loc)))

		case <-metadataTimer.C:
			if _, err := s.metadata.Trigger("scheduled", nil); err != nil {
				if errors.Is(err, ErrJobAlreadyRunning) {
					log.Println("Scheduler: metadata job still running, skipping this slot")
				} else {
					log.Printf("Scheduler: metadata trigger failed: %v", err)
				}
			}
			metadataTimer.Reset(time.Until(nextWeeklyRun(time.Now(), metadataWeekday, metadataHour, s.loc)))
		}
	}
}

// NextRuns reports the upcoming fire times, for the status endpoint.
func (s *Scheduler) NextRuns() (pricing, metadata time.Time) {
	now := time.Now()
	return nextDailyRun(now, pricingHour, s.loc), nextWeeklyRun(now, metadataWeekday, metadataHour, s.loc)
}
