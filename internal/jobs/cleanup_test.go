package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openclaw/provisioning-gateway/internal/config"
	"github.com/openclaw/provisioning-gateway/internal/model"
)

type mockUserRepo struct {
	deleteAbandonedCount int64
	deleteAbandonedErr   error
	deletedBefore        time.Time
	calls                int
}

func (m *mockUserRepo) FindByMXID(ctx context.Context, mxid model.UserID) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) Ensure(ctx context.Context, mxid model.UserID) (*model.User, error) {
	return nil, nil
}

func (m *mockUserRepo) MarkLoggedIn(ctx context.Context, params model.MarkLoggedInParams) error {
	return nil
}

func (m *mockUserRepo) ClearLogin(ctx context.Context, mxid model.UserID) error {
	return nil
}

func (m *mockUserRepo) DeleteAbandoned(ctx context.Context, before time.Time) (int64, error) {
	m.calls++
	m.deletedBefore = before
	return m.deleteAbandonedCount, m.deleteAbandonedErr
}

type mockEvicter struct {
	cutoff time.Time
	calls  int
	count  int
}

func (m *mockEvicter) EvictIdle(cutoff time.Time) int {
	m.calls++
	m.cutoff = cutoff
	return m.count
}

func TestCleanupJob(t *testing.T) {
	t.Run("deletes abandoned users and evicts idle records", func(t *testing.T) {
		users := &mockUserRepo{deleteAbandonedCount: 3}
		evicter := &mockEvicter{count: 2}
		job := NewCleanupJob(users, evicter, time.Hour, time.Minute)

		before := time.Now()
		job.cleanup()

		assert.Equal(t, 1, users.calls)
		assert.WithinDuration(t, before.Add(-config.AbandonedUserTTL), users.deletedBefore, time.Second)
		assert.Equal(t, 1, evicter.calls)
		assert.WithinDuration(t, before.Add(-time.Hour), evicter.cutoff, time.Second)
	})

	t.Run("store failure does not stop eviction", func(t *testing.T) {
		users := &mockUserRepo{deleteAbandonedErr: errors.New("db down")}
		evicter := &mockEvicter{}
		job := NewCleanupJob(users, evicter, time.Hour, time.Minute)

		job.cleanup()

		assert.Equal(t, 1, evicter.calls)
	})

	t.Run("eviction disabled without ttl", func(t *testing.T) {
		evicter := &mockEvicter{}
		job := NewCleanupJob(&mockUserRepo{}, evicter, 0, time.Minute)

		job.cleanup()

		assert.Equal(t, 0, evicter.calls)
	})

	t.Run("start and stop", func(t *testing.T) {
		job := NewCleanupJob(&mockUserRepo{}, nil, time.Hour, time.Hour)
		job.Start()
		time.Sleep(10 * time.Millisecond)
		job.Stop()
	})
}
