package tunnel

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"wg-redirect/pkg/journal"
	"wg-redirect/pkg/model"
)

// Liveness is the controller surface the supervisor needs.
type Liveness interface {
	IsUp() bool
	Reapply() error
	State() model.TunnelState
}

// Supervisor periodically checks the local interface and re-establishes it
// when it disappears. Failures are swallowed per tick and retried on the
// next one; the loop ends only when the context is cancelled. The server
// side runs its own equivalent loop inside the deployed control script, with
// no coordination beyond the tunnel itself.
type Supervisor struct {
	Tunnel  Liveness
	Period  time.Duration
	Journal *journal.Journal
}

// Run blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	period := s.Period
	if period <= 0 {
		period = 60 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	up := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.Tunnel.IsUp() {
				if st := s.Tunnel.State(); st.HandshakeKnown {
					log.WithField("lastHandshake", st.LastHandshake.Round(time.Second)).Debug("tunnel alive")
				}
				if !up {
					log.Info("tunnel interface back up")
					s.Journal.Record("supervise", "recovered", "")
					up = true
				}
				continue
			}
			if up {
				log.Warn("tunnel interface missing, re-applying")
				s.Journal.Record("supervise", "down", "interface missing")
				up = false
			}
			if err := s.Tunnel.Reapply(); err != nil {
				log.WithError(err).Warn("tunnel re-apply failed, will retry")
				continue
			}
			s.Journal.Record("supervise", "recovered", "re-applied config")
			up = true
		}
	}
}
