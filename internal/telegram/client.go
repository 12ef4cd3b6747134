package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/provisioning-gateway/internal/model"
)

const maxErrorBody = 64 << 10

// Client talks to the MTProto login worker, which owns the actual Telegram
// connections. One worker session exists per Matrix user ID.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Session returns the handle for mxid's worker session. No I/O happens
// until Start or a login call.
func (c *Client) Session(mxid model.UserID) *Session {
	return &Session{client: c, mxid: mxid}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		log.Error().
			Err(err).
			Str("method", method).
			Str("path", path).
			Dur("elapsed", elapsed).
			Msg("login worker request failed")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("login worker request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	rpcErr := &RPCError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(data, rpcErr); err != nil || rpcErr.Code == "" {
		return fmt.Errorf("login worker returned status %d", resp.StatusCode)
	}
	if rpcErr.Code == CodeSessionPasswordNeeded {
		return ErrPasswordNeeded
	}
	return rpcErr
}

// Session is one identity's remote Telegram session.
type Session struct {
	client *Client
	mxid   model.UserID
}

func (s *Session) path(action string) string {
	return "/sessions/" + url.PathEscape(s.mxid.String()) + "/" + action
}

func (s *Session) Start(ctx context.Context) error {
	return s.client.do(ctx, http.MethodPost, s.path("start"), nil, nil)
}

func (s *Session) IsLoggedIn(ctx context.Context) (bool, error) {
	var out struct {
		Authorized bool `json:"authorized"`
	}
	if err := s.client.do(ctx, http.MethodGet, s.path("authorized"), nil, &out); err != nil {
		return false, err
	}
	return out.Authorized, nil
}

func (s *Session) GetMe(ctx context.Context) (*model.RemoteUser, error) {
	var me model.RemoteUser
	if err := s.client.do(ctx, http.MethodGet, s.path("me"), nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (s *Session) SignInBot(ctx context.Context, token string) (*model.RemoteUser, error) {
	var me model.RemoteUser
	in := map[string]string{"token": token}
	if err := s.client.do(ctx, http.MethodPost, s.path("bot_token"), in, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (s *Session) RequestCode(ctx context.Context, phone string) error {
	in := map[string]string{"phone": phone}
	return s.client.do(ctx, http.MethodPost, s.path("send_code"), in, nil)
}

func (s *Session) SignInCode(ctx context.Context, code string) (*model.RemoteUser, error) {
	var me model.RemoteUser
	in := map[string]string{"code": code}
	if err := s.client.do(ctx, http.MethodPost, s.path("sign_in"), in, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

func (s *Session) SignInPassword(ctx context.Context, password string) (*model.RemoteUser, error) {
	var me model.RemoteUser
	in := map[string]string{"password": password}
	if err := s.client.do(ctx, http.MethodPost, s.path("check_password"), in, &me); err != nil {
		return nil, err
	}
	return &me, nil
}
