package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/provisioning-gateway/internal/redis"
)

const (
	TypeLogin  = "login"
	TypeLogout = "logout"
)

// LoginEvent tells the rest of the bridge that an identity's Telegram session
// changed state, so puppeting can be started or torn down.
type LoginEvent struct {
	Type       string    `json:"type"`
	MXID       string    `json:"mxid"`
	TelegramID int64     `json:"telegramId,omitempty"`
	Username   string    `json:"username,omitempty"`
	IsBot      bool      `json:"isBot,omitempty"`
	At         time.Time `json:"at"`
}

type publishClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Publisher struct {
	redis   publishClient
	channel string
}

func NewPublisher(client publishClient) *Publisher {
	return &Publisher{
		redis:   client,
		channel: redisclient.LoginEventsChannel,
	}
}

func (p *Publisher) Publish(ctx context.Context, event LoginEvent) error {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	receivers, err := p.redis.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return err
	}

	log.Debug().
		Str("mxid", event.MXID).
		Str("type", event.Type).
		Int64("receivers", receivers).
		Msg("login event published")

	return nil
}
