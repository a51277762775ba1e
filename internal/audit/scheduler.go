package audit

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the retention cleanup on a cron spec.
type Scheduler struct {
	c *cron.Cron
}

// StartRetention schedules sink.Cleanup on cronSpec, deleting entries
// older than retentionDays. Returns nil (nothing scheduled) when
// retention is disabled.
func StartRetention(sink Sink, retentionDays int, cronSpec string) (*Scheduler, error) {
	if retentionDays <= 0 {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(cronSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		n, err := sink.Cleanup(ctx, cutoff)
		if err != nil {
			log.Printf("audit: retention cleanup failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("audit: retention cleanup removed %d entries older than %s", n, cutoff.Format(time.RFC3339))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return &Scheduler{c: c}, nil
}

func (s *Scheduler) Stop() {
	if s != nil && s.c != nil {
		s.c.Stop()
	}
}
