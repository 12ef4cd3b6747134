package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/provisioning-gateway/internal/audit"
	apperrors "github.com/openclaw/provisioning-gateway/internal/errors"
	"github.com/openclaw/provisioning-gateway/internal/events"
	"github.com/openclaw/provisioning-gateway/internal/metrics"
	"github.com/openclaw/provisioning-gateway/internal/model"
	"github.com/openclaw/provisioning-gateway/internal/repository"
	"github.com/openclaw/provisioning-gateway/internal/telegram"
	"github.com/openclaw/provisioning-gateway/internal/util"
)

const persistTimeout = 5 * time.Second

type Phase string

const (
	PhaseGetMe        Phase = "get_me"
	PhaseBotToken     Phase = "bot_token"
	PhaseRequestCode  Phase = "request_code"
	PhaseSendCode     Phase = "send_code"
	PhaseSendPassword Phase = "send_password"
)

// State is the value reported in the "state" field of the phase's errors.
func (p Phase) State() string {
	switch p {
	case PhaseBotToken:
		return model.StateToken
	case PhaseRequestCode:
		return model.StateRequest
	case PhaseSendCode:
		return model.StateCode
	case PhaseSendPassword:
		return model.StatePassword
	default:
		return ""
	}
}

func (p Phase) action() string {
	switch p {
	case PhaseBotToken:
		return "sending token"
	case PhaseRequestCode:
		return "requesting code"
	case PhaseSendCode:
		return "sending code"
	case PhaseSendPassword:
		return "sending password"
	default:
		return "getting user info"
	}
}

// LoginService drives the login handshake of a resolved, whitelisted
// record. Every phase except GetMe runs inside the record's exclusive
// section, refuses to run on a logged-in session and never retries.
type LoginService struct {
	users     repository.UserRepository
	publisher LoginPublisher
	limiter   PhaseLimiter
	metrics   *metrics.Metrics
	timeout   time.Duration
}

func NewLoginService(
	users repository.UserRepository,
	publisher LoginPublisher,
	limiter PhaseLimiter,
	m *metrics.Metrics,
	timeout time.Duration,
) *LoginService {
	return &LoginService{
		users:     users,
		publisher: publisher,
		limiter:   limiter,
		metrics:   m,
		timeout:   timeout,
	}
}

// GetMe returns the Telegram profile of a logged-in record, or the error
// response to send instead.
func (s *LoginService) GetMe(ctx context.Context, rec *SessionRecord) (*model.RemoteUser, *model.LoginResponse) {
	if !rec.IsLoggedIn() {
		resp := model.Failure("", apperrors.NotLoggedIn())
		return nil, &resp
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	me, err := rec.remote.GetMe(callCtx)
	if err != nil {
		var resp model.LoginResponse
		if telegram.IsRPCError(err, telegram.CodeAuthKeyUnregistered) || telegram.IsRPCError(err, telegram.CodeSessionRevoked) {
			s.sessionLost(ctx, rec)
			resp = model.Failure("", apperrors.NotLoggedIn())
		} else {
			log.Error().Err(err).Str("mxid", rec.MXID.String()).Msg("get me failed")
			resp = model.Failure("", remoteFailure(PhaseGetMe, err))
		}
		s.metrics.ObservePhase(string(PhaseGetMe), outcome(resp), time.Since(start))
		return nil, &resp
	}

	s.metrics.ObservePhase(string(PhaseGetMe), "ok", time.Since(start))
	return me, nil
}

func (s *LoginService) BotToken(ctx context.Context, rec *SessionRecord, token string) model.LoginResponse {
	return s.run(ctx, rec, PhaseBotToken, func(callCtx context.Context) model.LoginResponse {
		me, err := rec.remote.SignInBot(callCtx, token)
		if err != nil {
			return s.fail(ctx, rec, PhaseBotToken, err)
		}
		return s.completeLogin(ctx, rec, PhaseBotToken, me)
	})
}

func (s *LoginService) RequestCode(ctx context.Context, rec *SessionRecord, phone string) model.LoginResponse {
	return s.run(ctx, rec, PhaseRequestCode, func(callCtx context.Context) model.LoginResponse {
		if err := rec.remote.RequestCode(callCtx, phone); err != nil {
			return s.fail(ctx, rec, PhaseRequestCode, err)
		}
		audit.Log(ctx, audit.Event{
			Type:    audit.EventCodeRequested,
			MXID:    rec.MXID.String(),
			Details: map[string]interface{}{"phone": util.MaskPhone(phone)},
		})
		return model.Pending(http.StatusOK, model.StateCode, "Code requested successfully.")
	})
}

func (s *LoginService) SendCode(ctx context.Context, rec *SessionRecord, code string) model.LoginResponse {
	return s.run(ctx, rec, PhaseSendCode, func(callCtx context.Context) model.LoginResponse {
		me, err := rec.remote.SignInCode(callCtx, code)
		if errors.Is(err, telegram.ErrPasswordNeeded) {
			return model.Pending(http.StatusAccepted, model.StatePassword,
				"Code accepted, but you have 2-factor authentication enabled.")
		}
		if err != nil {
			return s.fail(ctx, rec, PhaseSendCode, err)
		}
		return s.completeLogin(ctx, rec, PhaseSendCode, me)
	})
}

func (s *LoginService) SendPassword(ctx context.Context, rec *SessionRecord, password string) model.LoginResponse {
	return s.run(ctx, rec, PhaseSendPassword, func(callCtx context.Context) model.LoginResponse {
		me, err := rec.remote.SignInPassword(callCtx, password)
		if err != nil {
			return s.fail(ctx, rec, PhaseSendPassword, err)
		}
		return s.completeLogin(ctx, rec, PhaseSendPassword, me)
	})
}

func (s *LoginService) run(ctx context.Context, rec *SessionRecord, phase Phase, call func(context.Context) model.LoginResponse) model.LoginResponse {
	if err := rec.acquire(ctx); err != nil {
		return model.Failure(phase.State(), remoteFailure(phase, err))
	}
	defer rec.release()

	if rec.IsLoggedIn() {
		return model.AlreadyLoggedIn(rec.Username())
	}

	if s.limiter != nil && !s.limiter.Allow(ctx, rec.MXID.String()) {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventRateLimitExceed,
			MXID:    rec.MXID.String(),
			Details: map[string]interface{}{"phase": string(phase)},
		})
		resp := model.Failure(phase.State(), apperrors.RateLimited())
		s.metrics.ObservePhase(string(phase), outcome(resp), 0)
		return resp
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp := call(callCtx)
	s.metrics.ObservePhase(string(phase), outcome(resp), time.Since(start))
	return resp
}

func (s *LoginService) completeLogin(ctx context.Context, rec *SessionRecord, phase Phase, me *model.RemoteUser) model.LoginResponse {
	username := me.DisplayName()
	rec.setLoggedIn(username)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.users.MarkLoggedIn(persistCtx, model.MarkLoggedInParams{
		MXID:             rec.MXID,
		TelegramID:       me.ID,
		TelegramUsername: me.Username,
		IsBot:            me.IsBot,
	}); err != nil {
		log.Error().Err(err).Str("mxid", rec.MXID.String()).Msg("failed to persist login")
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(persistCtx, events.LoginEvent{
			Type:       events.TypeLogin,
			MXID:       rec.MXID.String(),
			TelegramID: me.ID,
			Username:   username,
			IsBot:      me.IsBot,
		}); err != nil {
			log.Warn().Err(err).Str("mxid", rec.MXID.String()).Msg("failed to publish login event")
		}
	}

	audit.Log(ctx, audit.Event{
		Type: audit.EventLoginSuccess,
		MXID: rec.MXID.String(),
		Details: map[string]interface{}{
			"phase":      string(phase),
			"telegramId": me.ID,
			"isBot":      me.IsBot,
		},
	})

	return model.LoggedIn(username)
}

func (s *LoginService) fail(ctx context.Context, rec *SessionRecord, phase Phase, err error) model.LoginResponse {
	appErr := remoteFailure(phase, err)
	if appErr.Code == apperrors.ErrCodeUnknown {
		log.Error().Err(err).Str("mxid", rec.MXID.String()).Str("phase", string(phase)).Msg("login phase failed")
	}
	audit.Log(ctx, audit.Event{
		Type: audit.EventLoginFailure,
		MXID: rec.MXID.String(),
		Details: map[string]interface{}{
			"phase":   string(phase),
			"errcode": string(appErr.Code),
		},
	})
	return model.Failure(phase.State(), appErr)
}

// sessionLost records that the remote side dropped an authorized session.
func (s *LoginService) sessionLost(ctx context.Context, rec *SessionRecord) {
	if err := rec.acquire(ctx); err != nil {
		return
	}
	defer rec.release()

	if !rec.IsLoggedIn() {
		return
	}
	rec.setLoggedOut()

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.users.ClearLogin(persistCtx, rec.MXID); err != nil {
		log.Error().Err(err).Str("mxid", rec.MXID.String()).Msg("failed to clear login")
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(persistCtx, events.LoginEvent{
			Type: events.TypeLogout,
			MXID: rec.MXID.String(),
		}); err != nil {
			log.Warn().Err(err).Str("mxid", rec.MXID.String()).Msg("failed to publish logout event")
		}
	}
	audit.Log(ctx, audit.Event{Type: audit.EventSessionLost, MXID: rec.MXID.String()})
}

// remoteFailure maps a collaborator error onto the provisioning error codes.
func remoteFailure(phase Phase, err error) *apperrors.AppError {
	var rpcErr *telegram.RPCError
	if !errors.As(err, &rpcErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.Unknown("Timed out while "+phase.action()+".", err)
		}
		return apperrors.Unknown("Internal server error while "+phase.action()+".", err)
	}

	switch rpcErr.Code {
	case telegram.CodePhoneNumberInvalid:
		return apperrors.Wrap(apperrors.ErrCodePhoneNumberInvalid, "Invalid phone number.", err)
	case telegram.CodePhoneNumberUnoccupied:
		return apperrors.Wrap(apperrors.ErrCodePhoneNumberUnoccupied, "That phone number has not been registered.", err)
	case telegram.CodePhoneNumberFlood:
		return apperrors.Wrap(apperrors.ErrCodePhoneNumberFlood,
			"Your phone number has been temporarily blocked for flooding. The ban is usually applied for around a day.", err)
	case telegram.CodePhoneNumberBanned:
		return apperrors.Wrap(apperrors.ErrCodePhoneNumberBanned, "Your phone number has been banned from Telegram.", err)
	case telegram.CodePhoneNumberAppSignupForbidden:
		return apperrors.Wrap(apperrors.ErrCodePhoneNumberSignupBlocked, "You have disabled 3rd party apps on your account.", err)
	case telegram.CodePhoneCodeInvalid:
		return apperrors.Wrap(apperrors.ErrCodePhoneCodeInvalid, "Invalid phone code.", err)
	case telegram.CodePhoneCodeExpired:
		return apperrors.Wrap(apperrors.ErrCodePhoneCodeExpired, "Phone code expired.", err)
	case telegram.CodePasswordHashInvalid:
		return apperrors.Wrap(apperrors.ErrCodePasswordInvalid, "Incorrect password.", err)
	case telegram.CodeAccessTokenInvalid:
		return apperrors.Wrap(apperrors.ErrCodeBotTokenInvalid, "Bot token invalid.", err)
	case telegram.CodeAccessTokenExpired:
		return apperrors.Wrap(apperrors.ErrCodeBotTokenExpired, "Bot token expired.", err)
	case telegram.CodeFloodWait:
		return apperrors.Wrap(apperrors.ErrCodeFloodWait,
			fmt.Sprintf("Too many requests. Please wait %d seconds before trying again.", rpcErr.Seconds), err)
	}

	status := http.StatusInternalServerError
	if rpcErr.StatusCode >= 400 && rpcErr.StatusCode < 500 {
		status = rpcErr.StatusCode
	}
	message := rpcErr.Message
	if message == "" {
		message = "Internal server error while " + phase.action() + "."
	}
	return apperrors.Wrap(apperrors.ErrorCode(strings.ToLower(rpcErr.Code)), message, err).WithStatus(status)
}

func outcome(resp model.LoginResponse) string {
	switch resp.Kind {
	case model.KindLoggedIn:
		return "logged_in"
	case model.KindPending:
		return resp.State
	default:
		if resp.Err == nil {
			return string(apperrors.ErrCodeUnknown)
		}
		return string(resp.Err.Code)
	}
}
