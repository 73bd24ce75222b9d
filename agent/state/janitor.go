package state

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Janitor periodically evicts idle sessions.
type Janitor struct {
	cron *cron.Cron
}

// StartJanitor schedules EvictIdle sweeps. spec is a cron expression
// (e.g. "@every 10m"); ttl <= 0 uses the store default.
func StartJanitor(store *Store, spec string, ttl time.Duration) (*Janitor, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if n := store.EvictIdle(time.Now(), ttl); n > 0 {
			log.Info().Int("evicted", n).Msg("idle sessions evicted")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule session janitor: %w", err)
	}
	c.Start()
	return &Janitor{cron: c}, nil
}

// Stop halts scheduling; a sweep already running completes.
func (j *Janitor) Stop() {
	if j != nil && j.cron != nil {
		j.cron.Stop()
	}
}
