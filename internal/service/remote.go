package service

import (
	"context"

	"github.com/openclaw/provisioning-gateway/internal/events"
	"github.com/openclaw/provisioning-gateway/internal/model"
)

// RemoteSession is one identity's handle on the remote Telegram login
// protocol. Implementations perform network I/O on every call.
type RemoteSession interface {
	Start(ctx context.Context) error
	IsLoggedIn(ctx context.Context) (bool, error)
	GetMe(ctx context.Context) (*model.RemoteUser, error)
	SignInBot(ctx context.Context, token string) (*model.RemoteUser, error)
	RequestCode(ctx context.Context, phone string) error
	SignInCode(ctx context.Context, code string) (*model.RemoteUser, error)
	SignInPassword(ctx context.Context, password string) (*model.RemoteUser, error)
}

// RemoteSessionFactory builds an unstarted session handle for mxid.
type RemoteSessionFactory func(mxid model.UserID) RemoteSession

type LoginPublisher interface {
	Publish(ctx context.Context, event events.LoginEvent) error
}

type PhaseLimiter interface {
	Allow(ctx context.Context, mxid string) bool
}
