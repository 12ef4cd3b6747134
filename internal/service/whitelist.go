package service

import (
	"strings"

	apperrors "github.com/openclaw/provisioning-gateway/internal/errors"
	"github.com/openclaw/provisioning-gateway/internal/model"
)

// Whitelist decides which Matrix users may provision a Telegram login.
// Entries are "*", a homeserver name, or a full user ID.
type Whitelist struct {
	all     bool
	servers map[string]struct{}
	users   map[model.UserID]struct{}
}

func NewWhitelist(entries []string) *Whitelist {
	w := &Whitelist{
		servers: make(map[string]struct{}),
		users:   make(map[model.UserID]struct{}),
	}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		switch {
		case entry == "":
			continue
		case entry == "*":
			w.all = true
		case strings.HasPrefix(entry, "@"):
			w.users[model.UserID(entry)] = struct{}{}
		default:
			w.servers[strings.ToLower(entry)] = struct{}{}
		}
	}
	return w
}

func (w *Whitelist) Allows(mxid model.UserID) bool {
	if w.all {
		return true
	}
	if _, ok := w.users[mxid]; ok {
		return true
	}
	_, ok := w.servers[strings.ToLower(mxid.Server())]
	return ok
}

// Check rejects records whose identity may not provision a session.
func (w *Whitelist) Check(rec *SessionRecord) error {
	if !rec.Whitelisted {
		return apperrors.NotWhitelisted()
	}
	return nil
}
