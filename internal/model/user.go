package model

import "time"

// User is the persisted side of a provisioned identity.
type User struct {
	MXID             UserID     `db:"mxid" json:"mxid"`
	TelegramID       *int64     `db:"telegram_id" json:"telegramId,omitempty"`
	TelegramUsername *string    `db:"telegram_username" json:"telegramUsername,omitempty"`
	IsBot            bool       `db:"is_bot" json:"isBot"`
	LoggedInAt       *time.Time `db:"logged_in_at" json:"loggedInAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

type MarkLoggedInParams struct {
	MXID             UserID
	TelegramID       int64
	TelegramUsername string
	IsBot            bool
}

// RemoteUser is the Telegram account a session is signed in as.
type RemoteUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	IsBot     bool   `json:"is_bot"`
}

// DisplayName is what the gateway reports as the logged-in username.
// Accounts without a public username fall back to their full name.
func (u *RemoteUser) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return joinName(u.FirstName, u.LastName)
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

type LoginStatus string

const (
	LoginStatusNotLoggedIn LoginStatus = "not_logged_in"
	LoginStatusLoggedIn    LoginStatus = "logged_in"
)
