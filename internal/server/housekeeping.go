package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultHousekeepingSchedule runs cleanup at the top of every hour.
const DefaultHousekeepingSchedule = "0 * * * *"

// StartHousekeeping schedules Housekeep on spec (standard five-field cron)
// and starts the scheduler. Stop the returned cron on shutdown.
func (s *Server) StartHousekeeping(spec string) (*cron.Cron, error) {
	logger := s.logger.With("component", "housekeeping")
	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Housekeep(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("schedule housekeeping %q: %w", spec, err)
	}
	c.Start()
	logger.Info("housekeeping scheduled", "schedule", spec)
	return c, nil
}
