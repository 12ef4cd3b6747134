package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/openclaw/provisioning-gateway/internal/errors"
	"github.com/openclaw/provisioning-gateway/internal/metrics"
	"github.com/openclaw/provisioning-gateway/internal/model"
	"github.com/openclaw/provisioning-gateway/internal/repository"
)

// SessionRecord is the in-memory state of one identity. The whitelist flag
// is fixed at creation; login status only changes through LoginService.
type SessionRecord struct {
	MXID        model.UserID
	Whitelisted bool

	remote RemoteSession

	// phase is a one-slot semaphore held for the whole of a login phase.
	phase chan struct{}

	startMu sync.Mutex
	started bool

	lastUsed atomic.Int64

	mu       sync.RWMutex
	status   model.LoginStatus
	username string
}

func newSessionRecord(mxid model.UserID, whitelisted bool, remote RemoteSession, user *model.User) *SessionRecord {
	rec := &SessionRecord{
		MXID:        mxid,
		Whitelisted: whitelisted,
		remote:      remote,
		phase:       make(chan struct{}, 1),
		status:      model.LoginStatusNotLoggedIn,
	}
	rec.touch()
	if user != nil && user.TelegramUsername != nil {
		rec.username = *user.TelegramUsername
	}
	return rec
}

func (r *SessionRecord) Status() model.LoginStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *SessionRecord) IsLoggedIn() bool {
	return r.Status() == model.LoginStatusLoggedIn
}

func (r *SessionRecord) Username() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.username
}

func (r *SessionRecord) Started() bool {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	return r.started
}

func (r *SessionRecord) setLoggedIn(username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = model.LoginStatusLoggedIn
	r.username = username
}

func (r *SessionRecord) setLoggedOut() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = model.LoginStatusNotLoggedIn
	r.username = ""
}

func (r *SessionRecord) touch() {
	r.lastUsed.Store(time.Now().UnixNano())
}

func (r *SessionRecord) idleSince(cutoff time.Time) bool {
	return r.lastUsed.Load() < cutoff.UnixNano()
}

// tryAcquire enters the phase section only if nobody holds it.
func (r *SessionRecord) tryAcquire() bool {
	select {
	case r.phase <- struct{}{}:
		return true
	default:
		return false
	}
}

// acquire enters the record's exclusive phase section.
func (r *SessionRecord) acquire(ctx context.Context) error {
	select {
	case r.phase <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *SessionRecord) release() {
	<-r.phase
}

// ensureStarted starts the remote session once and reads its login status.
// A failed start is retried by the next caller.
func (r *SessionRecord) ensureStarted(ctx context.Context) error {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	if r.started {
		return nil
	}

	if err := r.remote.Start(ctx); err != nil {
		return fmt.Errorf("start remote session: %w", err)
	}
	loggedIn, err := r.remote.IsLoggedIn(ctx)
	if err != nil {
		return fmt.Errorf("check remote login: %w", err)
	}
	r.started = true

	if !loggedIn {
		r.setLoggedOut()
		return nil
	}

	username := r.Username()
	if username == "" {
		if me, err := r.remote.GetMe(ctx); err == nil && me != nil {
			username = me.DisplayName()
		} else if err != nil {
			log.Warn().Err(err).Str("mxid", r.MXID.String()).Msg("failed to fetch username for logged in session")
		}
	}
	r.setLoggedIn(username)
	return nil
}

// SessionDirectory owns every SessionRecord. Create one at process start
// and Close it at shutdown.
type SessionDirectory struct {
	users     repository.UserRepository
	newRemote RemoteSessionFactory
	whitelist *Whitelist
	metrics   *metrics.Metrics

	mu       sync.RWMutex
	records  map[model.UserID]*SessionRecord
	creating singleflight.Group
}

func NewSessionDirectory(
	users repository.UserRepository,
	newRemote RemoteSessionFactory,
	whitelist *Whitelist,
	m *metrics.Metrics,
) *SessionDirectory {
	return &SessionDirectory{
		users:     users,
		newRemote: newRemote,
		whitelist: whitelist,
		metrics:   m,
		records:   make(map[model.UserID]*SessionRecord),
	}
}

// Resolve returns the record for mxid, creating it on first use. With
// start set the remote session is started and its login status read
// before Resolve returns. Errors are *apperrors.AppError.
func (d *SessionDirectory) Resolve(ctx context.Context, mxid model.UserID, start bool) (*SessionRecord, error) {
	rec, err := d.getOrCreate(ctx, mxid)
	if err != nil {
		log.Error().Err(err).Str("mxid", mxid.String()).Msg("failed to resolve session record")
		return nil, apperrors.Unknown("Failed to load user.", err)
	}

	if start {
		if err := rec.ensureStarted(ctx); err != nil {
			log.Error().Err(err).Str("mxid", mxid.String()).Msg("failed to start remote session")
			return nil, apperrors.RemoteUnavailable(err)
		}
	}

	return rec, nil
}

func (d *SessionDirectory) getOrCreate(ctx context.Context, mxid model.UserID) (*SessionRecord, error) {
	if rec := d.lookup(mxid); rec != nil {
		return rec, nil
	}

	v, err, _ := d.creating.Do(mxid.String(), func() (any, error) {
		if rec := d.lookup(mxid); rec != nil {
			return rec, nil
		}

		// Shared by every waiter, so one caller going away must not fail the rest.
		createCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()

		user, err := d.users.Ensure(createCtx, mxid)
		if err != nil {
			return nil, fmt.Errorf("ensure user: %w", err)
		}

		rec := newSessionRecord(mxid, d.whitelist.Allows(mxid), d.newRemote(mxid), user)

		d.mu.Lock()
		d.records[mxid] = rec
		count := len(d.records)
		d.mu.Unlock()

		d.metrics.SetSessionRecords(count)
		log.Debug().
			Str("mxid", mxid.String()).
			Bool("whitelisted", rec.Whitelisted).
			Msg("session record created")

		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*SessionRecord), nil
}

// lookup marks the record used while still holding the read lock, so
// EvictIdle never drops a record a request has just picked up.
func (d *SessionDirectory) lookup(mxid model.UserID) *SessionRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec := d.records[mxid]
	if rec != nil {
		rec.touch()
	}
	return rec
}

// EvictIdle drops NotLoggedIn records unused since cutoff. Logged-in
// records and records in the middle of a phase are kept. The next request
// for an evicted identity builds a fresh record.
func (d *SessionDirectory) EvictIdle(cutoff time.Time) int {
	d.mu.Lock()
	evicted := 0
	for mxid, rec := range d.records {
		if rec.IsLoggedIn() || !rec.idleSince(cutoff) {
			continue
		}
		if !rec.tryAcquire() {
			continue
		}
		delete(d.records, mxid)
		rec.release()
		evicted++
	}
	count := len(d.records)
	d.mu.Unlock()

	d.metrics.SetSessionRecords(count)
	if evicted > 0 {
		log.Info().Int("evicted", evicted).Int("remaining", count).Msg("evicted idle session records")
	}
	return evicted
}

func (d *SessionDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Close drops every record. Requests still holding a record finish with it.
func (d *SessionDirectory) Close() {
	d.mu.Lock()
	count := len(d.records)
	d.records = make(map[model.UserID]*SessionRecord)
	d.mu.Unlock()

	d.metrics.SetSessionRecords(0)
	log.Info().Int("records", count).Msg("session directory closed")
}
