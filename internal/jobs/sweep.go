package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/standupbot/report-server-go/internal/util"
	"github.com/standupbot/report-server-go/internal/ws"
)

type SessionCloser interface {
	Close(ctx context.Context, sessionID string)
}

// SweepJob pings every live login socket and tears down the ones whose
// transport has failed. It does not expire healthy sessions.
type SweepJob struct {
	registry *ws.Registry
	closer   SessionCloser
	interval time.Duration
	done     chan struct{}
}

func NewSweepJob(registry *ws.Registry, closer SessionCloser, interval time.Duration) *SweepJob {
	return &SweepJob{
		registry: registry,
		closer:   closer,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("sweep job started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("sweep job stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var dead []string
	j.registry.Each(func(c *ws.Conn) {
		if err := c.Ping(); err != nil {
			log.Debug().Err(err).Str("sessionId", util.MaskID(c.SessionID)).Msg("ping failed")
			dead = append(dead, c.SessionID)
		}
	})

	for _, id := range dead {
		j.closer.Close(ctx, id)
	}

	if len(dead) > 0 {
		log.Info().Int("count", len(dead)).Msg("swept dead login sessions")
	}
	return len(dead)
}
