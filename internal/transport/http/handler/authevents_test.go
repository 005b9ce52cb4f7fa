package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/federicoroldos/sofull-site/internal/application/notify"
	"github.com/federicoroldos/sofull-site/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockNotify struct{ mock.Mock }

func (m *mockNotify) Dispatch(ctx context.Context, ident domain.Identity, meta domain.ClientMetadata) (*notify.Result, error) {
	args := m.Called(ctx, ident, meta)
	if r, _ := args.Get(0).(*notify.Result); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockAssertions struct{ mock.Mock }

func (m *mockAssertions) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	args := m.Called(ctx, token)
	if id, _ := args.Get(0).(*domain.Identity); id != nil {
		return id, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockCaptcha struct{ mock.Mock }

func (m *mockCaptcha) Verify(ctx context.Context, token, remoteIP string) error {
	return m.Called(ctx, token, remoteIP).Error(0)
}

// --- helpers ---

func dispatchRequest(body string, mutate func(*http.Request)) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/auth-events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer tok-123")
	req.RemoteAddr = "1.2.3.4:55555"
	if mutate != nil {
		mutate(req)
	}
	return req
}

func serve(h *AuthEventHandler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.Dispatch(rec, req)
	return rec
}

// --- Dispatch ---

func TestDispatch_HappyPath(t *testing.T) {
	svc := &mockNotify{}
	as := &mockAssertions{}

	ident := &domain.Identity{UID: "u1", Email: "a@b.com"}
	as.On("Verify", mock.Anything, "tok-123").Return(ident, nil)
	svc.On("Dispatch", mock.Anything, *ident, mock.MatchedBy(func(meta domain.ClientMetadata) bool {
		return meta.Locale == "es-UY" && meta.Country == "UY" && meta.IP == "1.2.3.4"
	})).Return(&notify.Result{SentWelcome: true}, nil)

	h := NewAuthEventHandler(svc, as, nil)
	rec := serve(h, dispatchRequest("{}", func(r *http.Request) {
		r.Header.Set("Accept-Language", "es-UY,es;q=0.9,en;q=0.8")
		r.Header.Set("Cloudfront-Viewer-Country", "UY")
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"sentWelcome":true,"sentLogin":false}`, rec.Body.String())
}

func TestDispatch_SkippedResponse(t *testing.T) {
	svc := &mockNotify{}
	as := &mockAssertions{}
	as.On("Verify", mock.Anything, "tok-123").Return(&domain.Identity{UID: "u1"}, nil)
	svc.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).Return(&notify.Result{Skipped: true}, nil)

	rec := serve(NewAuthEventHandler(svc, as, nil), dispatchRequest("{}", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"sentWelcome":false,"sentLogin":false,"skipped":true}`, rec.Body.String())
}

func TestDispatch_EmptyBodyAccepted(t *testing.T) {
	svc := &mockNotify{}
	as := &mockAssertions{}
	as.On("Verify", mock.Anything, "tok-123").Return(&domain.Identity{UID: "u1"}, nil)
	svc.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).Return(&notify.Result{Skipped: true}, nil)

	rec := serve(NewAuthEventHandler(svc, as, nil), dispatchRequest("", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDispatch_UnknownField_BadRequest(t *testing.T) {
	h := NewAuthEventHandler(&mockNotify{}, &mockAssertions{}, nil)
	rec := serve(h, dispatchRequest(`{"captchaToken":"x","extra":1}`, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatch_MalformedJSON_BadRequest(t *testing.T) {
	h := NewAuthEventHandler(&mockNotify{}, &mockAssertions{}, nil)
	rec := serve(h, dispatchRequest(`{"captchaToken"`, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatch_WrongContentType_Unsupported(t *testing.T) {
	h := NewAuthEventHandler(&mockNotify{}, &mockAssertions{}, nil)
	rec := serve(h, dispatchRequest("{}", func(r *http.Request) {
		r.Header.Set("Content-Type", "text/plain")
	}))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestDispatch_MissingBearer_Unauthorized(t *testing.T) {
	h := NewAuthEventHandler(&mockNotify{}, &mockAssertions{}, nil)
	rec := serve(h, dispatchRequest("{}", func(r *http.Request) {
		r.Header.Del("Authorization")
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDispatch_InvalidAssertion_Unauthorized(t *testing.T) {
	as := &mockAssertions{}
	as.On("Verify", mock.Anything, "tok-123").Return(nil, domain.ErrUnauthorized)

	rec := serve(NewAuthEventHandler(&mockNotify{}, as, nil), dispatchRequest("{}", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDispatch_CaptchaRejected_Forbidden(t *testing.T) {
	cp := &mockCaptcha{}
	cp.On("Verify", mock.Anything, "cap-tok", "1.2.3.4").Return(domain.ErrForbidden)

	h := NewAuthEventHandler(&mockNotify{}, &mockAssertions{}, cp)
	rec := serve(h, dispatchRequest(`{"captchaToken":"cap-tok"}`, nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	cp.AssertExpectations(t)
}

func TestDispatch_CaptchaBeforeAssertion(t *testing.T) {
	cp := &mockCaptcha{}
	as := &mockAssertions{}
	cp.On("Verify", mock.Anything, "", "1.2.3.4").Return(domain.ErrForbidden)

	rec := serve(NewAuthEventHandler(&mockNotify{}, as, cp), dispatchRequest("{}", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	as.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything)
}

func TestDispatch_ProviderOutage_BadGateway(t *testing.T) {
	svc := &mockNotify{}
	as := &mockAssertions{}
	as.On("Verify", mock.Anything, "tok-123").Return(&domain.Identity{UID: "u1"}, nil)
	svc.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrSendFailed)

	rec := serve(NewAuthEventHandler(svc, as, nil), dispatchRequest("{}", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestDispatch_StateFault_InternalError(t *testing.T) {
	svc := &mockNotify{}
	as := &mockAssertions{}
	as.On("Verify", mock.Anything, "tok-123").Return(&domain.Identity{UID: "u1"}, nil)
	svc.On("Dispatch", mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError)

	rec := serve(NewAuthEventHandler(svc, as, nil), dispatchRequest("{}", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
