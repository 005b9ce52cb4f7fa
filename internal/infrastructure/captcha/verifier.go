package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/federicoroldos/sofull-site/internal/config"
	"github.com/federicoroldos/sofull-site/internal/domain"
)

// Verifier checks CAPTCHA tokens against a third-party siteverify endpoint.
// A nil *Verifier (unconfigured secret) skips verification entirely.
type Verifier struct {
	secret    string
	verifyURL string
	minScore  float64
	client    *http.Client
}

func NewVerifier(cfg *config.Config) *Verifier {
	if cfg.CaptchaSecret == "" {
		return nil
	}
	return &Verifier{
		secret:    cfg.CaptchaSecret,
		verifyURL: cfg.CaptchaVerifyURL,
		minScore:  cfg.CaptchaMinScore,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type verifyResponse struct {
	Success bool     `json:"success"`
	Score   *float64 `json:"score"`
	Errors  []string `json:"error-codes"`
}

// Verify posts the token to the verifier. Returns a domain.ErrForbidden-
// wrapped error when the check does not pass.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if v == nil {
		return nil
	}
	if token == "" {
		return fmt.Errorf("captcha token missing: %w", domain.ErrForbidden)
	}

	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
		"remoteip": {remoteIP},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("captcha verify request: %w", err)
	}
	defer resp.Body.Close()

	var result verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("captcha verify decode: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("captcha rejected (%s): %w", strings.Join(result.Errors, ","), domain.ErrForbidden)
	}
	if result.Score != nil && *result.Score < v.minScore {
		return fmt.Errorf("captcha score %.2f below threshold: %w", *result.Score, domain.ErrForbidden)
	}
	return nil
}
