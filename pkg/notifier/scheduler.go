package notifier

import (
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Scheduler re-fires the relay refresh on a cron cadence, as a safety net for
// signals lost while the relay was unreachable.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler starts a cron runner with the given spec (standard 5-field
// syntax). Returns nil without error when spec is empty.
func NewScheduler(spec string, relay *RelayProxy) (*Scheduler, error) {
	if spec == "" || relay == nil {
		return nil, nil
	}

	c := cron.New()
	if _, err := c.AddFunc(spec, relay.RefreshAsync); err != nil {
		return nil, err
	}
	c.Start()
	log.WithField("schedule", spec).Info("scheduled relay refresh enabled")
	return &Scheduler{cron: c}, nil
}

// Stop halts the cron runner. Safe on nil.
func (s *Scheduler) Stop() {
	if s == nil {
		return
	}
	s.cron.Stop()
}
