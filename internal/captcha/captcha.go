// Package captcha verifies hCaptcha response tokens during registration.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultEndpoint = "https://hcaptcha.com/siteverify"

// Verifier checks captcha tokens against the hCaptcha verification endpoint.
// With an empty secret the verifier is disabled and accepts everything, so
// local setups work without a captcha account.
type Verifier struct {
	secret   string
	endpoint string
	client   *http.Client
}

// Option configures the Verifier.
type Option func(*Verifier)

// WithEndpoint overrides the verification URL (useful for tests).
func WithEndpoint(u string) Option {
	return func(v *Verifier) {
		if u != "" {
			v.endpoint = u
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		if c != nil {
			v.client = c
		}
	}
}

// New constructs a Verifier for the given site secret.
func New(secret string, opts ...Option) *Verifier {
	v := &Verifier{
		secret:   strings.TrimSpace(secret),
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Enabled reports whether a secret is configured.
func (v *Verifier) Enabled() bool { return v.secret != "" }

type verifyResponse struct {
	Success bool `json:"success"`
}

// Verify checks a captcha response token. Returns nil when the token is
// valid or the verifier is disabled.
func (v *Verifier) Verify(ctx context.Context, token, remoteIP string) error {
	if !v.Enabled() {
		return nil
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("captcha: empty response token")
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if !out.Success {
		return errors.New("captcha: verification rejected")
	}
	return nil
}
