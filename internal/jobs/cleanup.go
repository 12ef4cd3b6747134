package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/provisioning-gateway/internal/config"
	"github.com/openclaw/provisioning-gateway/internal/repository"
)

// IdleEvicter drops in-memory session records unused since cutoff.
type IdleEvicter interface {
	EvictIdle(cutoff time.Time) int
}

type CleanupJob struct {
	userRepo  repository.UserRepository
	directory IdleEvicter
	idleTTL   time.Duration
	interval  time.Duration
	done      chan struct{}
}

func NewCleanupJob(
	userRepo repository.UserRepository,
	directory IdleEvicter,
	idleTTL time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		userRepo:  userRepo,
		directory: directory,
		idleTTL:   idleTTL,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()

	j.runCleanup(ctx, "abandoned users", func(ctx context.Context) (int64, error) {
		return j.userRepo.DeleteAbandoned(ctx, now.Add(-config.AbandonedUserTTL))
	})

	if j.directory != nil && j.idleTTL > 0 {
		j.runCleanup(ctx, "idle session records", func(context.Context) (int64, error) {
			return int64(j.directory.EvictIdle(now.Add(-j.idleTTL))), nil
		})
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
