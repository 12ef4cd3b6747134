package model

import (
	"fmt"
	"strings"
)

// UserID is a Matrix user ID ("@localpart:server") naming the account being
// provisioned. Only the structural shape is checked.
type UserID string

func ParseUserID(raw string) (UserID, error) {
	if len(raw) < 2 || raw[0] != '@' {
		return "", fmt.Errorf("invalid user ID %q: must start with @", raw)
	}
	colon := strings.IndexByte(raw, ':')
	if colon < 0 {
		return "", fmt.Errorf("invalid user ID %q: missing :server", raw)
	}
	if colon == len(raw)-1 {
		return "", fmt.Errorf("invalid user ID %q: empty server", raw)
	}
	return UserID(raw), nil
}

func (u UserID) String() string { return string(u) }

func (u UserID) Localpart() string {
	s := string(u)
	if colon := strings.IndexByte(s, ':'); colon > 0 {
		return s[1:colon]
	}
	return ""
}

// Server returns everything after the first ':', port included.
func (u UserID) Server() string {
	s := string(u)
	if colon := strings.IndexByte(s, ':'); colon >= 0 {
		return s[colon+1:]
	}
	return ""
}
