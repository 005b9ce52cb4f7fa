package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/federicoroldos/sofull-site/internal/application/notify"
	"github.com/federicoroldos/sofull-site/internal/domain"
	"github.com/federicoroldos/sofull-site/internal/pkg/validate"
)

// AssertionVerifier validates a bearer identity assertion.
type AssertionVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

// CaptchaVerifier checks the optional CAPTCHA token. Implementations may be
// nil-safe to represent "unconfigured, skip".
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// AuthEventHandler receives sign-in events and runs the notification dispatcher.
type AuthEventHandler struct {
	svc        notify.Service
	assertions AssertionVerifier
	captcha    CaptchaVerifier // nil when unconfigured
}

func NewAuthEventHandler(svc notify.Service, assertions AssertionVerifier, captcha CaptchaVerifier) *AuthEventHandler {
	return &AuthEventHandler{svc: svc, assertions: assertions, captcha: captcha}
}

type authEventRequest struct {
	CaptchaToken string `json:"captchaToken" validate:"omitempty,max=4096"`
}

// Dispatch handles POST /v1/auth-events. Method and origin gating happen in
// the router; everything else about the request is validated here, each
// rejection with its own status, before any state is touched.
func (h *AuthEventHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var req authEventRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		dec := json.NewDecoder(strings.NewReader(string(body)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed payload")
			return
		}
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip := clientIP(r)

	if h.captcha != nil {
		if err := h.captcha.Verify(r.Context(), req.CaptchaToken, ip); err != nil {
			writeError(w, http.StatusForbidden, "captcha verification failed")
			return
		}
	}

	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeError(w, http.StatusUnauthorized, "missing or invalid authorization header")
		return
	}
	ident, err := h.assertions.Verify(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired assertion")
		return
	}

	result, err := h.svc.Dispatch(r.Context(), *ident, clientMetadata(r, ip))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSendFailed):
			writeError(w, http.StatusBadGateway, "notification provider failure")
		case errors.Is(err, domain.ErrBadRequest):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, DispatchEnvelope{
		OK:          true,
		SentWelcome: result.SentWelcome,
		SentLogin:   result.SentLogin,
		Skipped:     result.Skipped,
	})
}

// clientMetadata gathers the best-effort request context: locale from
// Accept-Language, timezone from the client header, device from the user
// agent, coarse geo from edge headers.
func clientMetadata(r *http.Request, ip string) domain.ClientMetadata {
	meta := domain.ClientMetadata{
		Timezone:  r.Header.Get("X-Client-Timezone"),
		UserAgent: r.UserAgent(),
		IP:        ip,
	}
	if al := r.Header.Get("Accept-Language"); al != "" {
		first := strings.Split(al, ",")[0]
		meta.Locale = strings.TrimSpace(strings.Split(first, ";")[0])
	}
	if c := r.Header.Get("Cloudfront-Viewer-Country"); c != "" {
		meta.Country = c
	} else if c := r.Header.Get("Cf-Ipcountry"); c != "" {
		meta.Country = c
	}
	meta.City = r.Header.Get("Cloudfront-Viewer-City")
	return meta
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		return xrip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
