package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/openclaw/provisioning-gateway/internal/events"
	"github.com/openclaw/provisioning-gateway/internal/model"
)

// fakeRemote is a scriptable RemoteSession. Nil function fields succeed.
type fakeRemote struct {
	startCalls    atomic.Int32
	signInCalls   atomic.Int32
	loggedIn      bool
	me            *model.RemoteUser
	startFn       func(ctx context.Context) error
	getMeFn       func(ctx context.Context) (*model.RemoteUser, error)
	requestCodeFn func(ctx context.Context, phone string) error
	signInCodeFn  func(ctx context.Context, code string) (*model.RemoteUser, error)
	signInPassFn  func(ctx context.Context, password string) (*model.RemoteUser, error)
	signInBotFn   func(ctx context.Context, token string) (*model.RemoteUser, error)
}

func (f *fakeRemote) Start(ctx context.Context) error {
	f.startCalls.Add(1)
	if f.startFn != nil {
		return f.startFn(ctx)
	}
	return nil
}

func (f *fakeRemote) IsLoggedIn(ctx context.Context) (bool, error) {
	return f.loggedIn, nil
}

func (f *fakeRemote) GetMe(ctx context.Context) (*model.RemoteUser, error) {
	if f.getMeFn != nil {
		return f.getMeFn(ctx)
	}
	return f.me, nil
}

func (f *fakeRemote) SignInBot(ctx context.Context, token string) (*model.RemoteUser, error) {
	f.signInCalls.Add(1)
	if f.signInBotFn != nil {
		return f.signInBotFn(ctx, token)
	}
	return f.me, nil
}

func (f *fakeRemote) RequestCode(ctx context.Context, phone string) error {
	f.signInCalls.Add(1)
	if f.requestCodeFn != nil {
		return f.requestCodeFn(ctx, phone)
	}
	return nil
}

func (f *fakeRemote) SignInCode(ctx context.Context, code string) (*model.RemoteUser, error) {
	f.signInCalls.Add(1)
	if f.signInCodeFn != nil {
		return f.signInCodeFn(ctx, code)
	}
	return f.me, nil
}

func (f *fakeRemote) SignInPassword(ctx context.Context, password string) (*model.RemoteUser, error) {
	f.signInCalls.Add(1)
	if f.signInPassFn != nil {
		return f.signInPassFn(ctx, password)
	}
	return f.me, nil
}

// memUserRepo is an in-memory UserRepository.
type memUserRepo struct {
	mu        sync.Mutex
	users     map[model.UserID]*model.User
	ensureErr error
	ensureFn  func(ctx context.Context) error
	ensures   atomic.Int32
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[model.UserID]*model.User)}
}

func (r *memUserRepo) FindByMXID(ctx context.Context, mxid model.UserID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[mxid], nil
}

func (r *memUserRepo) Ensure(ctx context.Context, mxid model.UserID) (*model.User, error) {
	r.ensures.Add(1)
	if r.ensureErr != nil {
		return nil, r.ensureErr
	}
	if r.ensureFn != nil {
		if err := r.ensureFn(ctx); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[mxid]; ok {
		return u, nil
	}
	u := &model.User{MXID: mxid, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.users[mxid] = u
	return u, nil
}

func (r *memUserRepo) MarkLoggedIn(ctx context.Context, params model.MarkLoggedInParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	id := params.TelegramID
	username := params.TelegramUsername
	r.users[params.MXID] = &model.User{
		MXID:             params.MXID,
		TelegramID:       &id,
		TelegramUsername: &username,
		IsBot:            params.IsBot,
		LoggedInAt:       &now,
		UpdatedAt:        now,
	}
	return nil
}

func (r *memUserRepo) ClearLogin(ctx context.Context, mxid model.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[mxid]; ok {
		u.TelegramID = nil
		u.TelegramUsername = nil
		u.LoggedInAt = nil
	}
	return nil
}

func (r *memUserRepo) DeleteAbandoned(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event events.LoginEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type fakeLimiter struct {
	allow bool
	calls atomic.Int32
}

func (l *fakeLimiter) Allow(ctx context.Context, mxid string) bool {
	l.calls.Add(1)
	return l.allow
}

// newTestRecord builds a started record around remote.
func newTestRecord(mxid model.UserID, remote RemoteSession, loggedIn bool, username string) *SessionRecord {
	rec := newSessionRecord(mxid, true, remote, nil)
	rec.started = true
	if loggedIn {
		rec.setLoggedIn(username)
	}
	return rec
}
