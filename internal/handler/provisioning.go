package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/provisioning-gateway/internal/audit"
	apperrors "github.com/openclaw/provisioning-gateway/internal/errors"
	"github.com/openclaw/provisioning-gateway/internal/httputil"
	"github.com/openclaw/provisioning-gateway/internal/model"
	"github.com/openclaw/provisioning-gateway/internal/service"
)

// mxidPattern is the shape a Matrix user ID segment must have to reach a
// handler at all. Anything else is a 404 from the router.
const mxidPattern = "{mxid:@[^:]*:.+}"

type ProvisioningHandler struct {
	directory *service.SessionDirectory
	whitelist *service.Whitelist
	logins    *service.LoginService
}

func NewProvisioningHandler(
	directory *service.SessionDirectory,
	whitelist *service.Whitelist,
	logins *service.LoginService,
) *ProvisioningHandler {
	return &ProvisioningHandler{
		directory: directory,
		whitelist: whitelist,
		logins:    logins,
	}
}

// Routes registers the provisioning endpoints. The middlewares run after
// route matching, so malformed user IDs never reach authentication.
func (h *ProvisioningHandler) Routes(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(decodeRoutePath)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, "", apperrors.NotFound())
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, "", apperrors.MethodNotAllowed())
	})

	r.Group(func(r chi.Router) {
		r.Use(middlewares...)

		r.Get("/"+mxidPattern+"/get_me", h.GetMe)

		login := "/login/" + mxidPattern
		r.Post(login+"/bot_token", h.BotToken)
		r.Post(login+"/request_code", h.RequestCode)
		r.Post(login+"/send_code", h.SendCode)
		r.Post(login+"/send_password", h.SendPassword)
	})

	return r
}

// decodeRoutePath makes routing see the decoded path. chi matches on
// RawPath when the client percent-encoded the user ID ("%40alice%3Aexample.com").
func decodeRoutePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawPath != "" {
			rctx := chi.RouteContext(r.Context())
			if rctx != nil {
				path := rctx.RoutePath
				if path == "" {
					path = r.URL.RawPath
				}
				if decoded, err := url.PathUnescape(path); err == nil {
					rctx.RoutePath = decoded
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

type profileResponse struct {
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	IsBot     bool   `json:"is_bot"`
}

// GET /{mxid}/get_me
func (h *ProvisioningHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.resolve(w, r)
	if !ok {
		return
	}

	me, errResp := h.logins.GetMe(r.Context(), rec)
	if errResp != nil {
		httputil.WriteLogin(w, *errResp)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, profileResponse{
		Username:  me.Username,
		FirstName: me.FirstName,
		LastName:  me.LastName,
		Phone:     me.Phone,
		IsBot:     me.IsBot,
	})
}

// POST /login/{mxid}/bot_token
func (h *ProvisioningHandler) BotToken(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	rec, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httputil.WriteLogin(w, h.logins.BotToken(r.Context(), rec, body.String("token")))
}

// POST /login/{mxid}/request_code
func (h *ProvisioningHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	rec, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httputil.WriteLogin(w, h.logins.RequestCode(r.Context(), rec, body.String("phone")))
}

// POST /login/{mxid}/send_code
func (h *ProvisioningHandler) SendCode(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	rec, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httputil.WriteLogin(w, h.logins.SendCode(r.Context(), rec, body.String("code")))
}

// POST /login/{mxid}/send_password
func (h *ProvisioningHandler) SendPassword(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	rec, ok := h.resolve(w, r)
	if !ok {
		return
	}
	httputil.WriteLogin(w, h.logins.SendPassword(r.Context(), rec, body.String("password")))
}

// resolve looks up the record named in the URL, starts its remote session
// and applies the whitelist. On failure the response has been written.
func (h *ProvisioningHandler) resolve(w http.ResponseWriter, r *http.Request) (*service.SessionRecord, bool) {
	raw := chi.URLParam(r, "mxid")
	mxid, err := model.ParseUserID(raw)
	if err != nil {
		httputil.WriteError(w, "", apperrors.MXIDInvalid(raw))
		return nil, false
	}

	rec, err := h.directory.Resolve(r.Context(), mxid, true)
	if err != nil {
		httputil.WriteError(w, "", err)
		return nil, false
	}

	if err := h.whitelist.Check(rec); err != nil {
		audit.LogFromRequest(r, audit.Event{
			Type: audit.EventWhitelistDenied,
			MXID: mxid.String(),
		})
		httputil.WriteError(w, "", err)
		return nil, false
	}

	return rec, true
}

// loginBody is a decoded request body. Missing fields read as "".
type loginBody map[string]json.RawMessage

// String returns a string field. Numbers are accepted verbatim, so
// {"code": 12345} and {"code": "12345"} are the same request.
func (b loginBody) String(key string) string {
	raw, ok := b[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// readBody decodes a non-empty JSON object. On failure the response has
// been written.
func readBody(w http.ResponseWriter, r *http.Request) (loginBody, bool) {
	data, err := io.ReadAll(r.Body)
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		httputil.WriteError(w, "", apperrors.BodyTooLarge())
		return nil, false
	}

	var body loginBody
	if err == nil {
		err = json.Unmarshal(data, &body)
	}

	switch {
	case err != nil:
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("invalid provisioning request body")
		httputil.WriteError(w, "", apperrors.JSONInvalid())
		return nil, false
	case len(body) == 0:
		httputil.WriteError(w, "", apperrors.JSONInvalid())
		return nil, false
	}

	return body, true
}
