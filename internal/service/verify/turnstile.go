package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultVerifyURL is Cloudflare's Turnstile siteverify endpoint.
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

var (
	ErrTokenRequired = errors.New("verification token is required")
	ErrTokenRejected = errors.New("security verification failed")
)

// Verifier checks Turnstile challenge tokens against the provider.
// Rejections are expected adversarial traffic, not server faults.
type Verifier struct {
	secret    string
	verifyURL string
	disabled  bool
	client    *http.Client
}

// New builds a verifier. With disabled=true every token passes, which
// is how local development and tests run.
func New(secret, verifyURL string, disabled bool) *Verifier {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}
	return &Verifier{
		secret:    secret,
		verifyURL: verifyURL,
		disabled:  disabled,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Disabled reports whether verification is switched off.
func (v *Verifier) Disabled() bool {
	return v.disabled
}

type siteverifyResponse struct {
	Success bool `json:"success"`
}

// Verify checks one token. An empty token fails fast with
// ErrTokenRequired; a provider rejection maps to ErrTokenRejected.
func (v *Verifier) Verify(ctx context.Context, token string) error {
	if v.disabled {
		return nil
	}
	if token == "" {
		return ErrTokenRequired
	}

	body, err := json.Marshal(map[string]string{
		"secret":   v.secret,
		"response": token,
	})
	if err != nil {
		return fmt.Errorf("encoding siteverify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling siteverify: %w", err)
	}
	defer resp.Body.Close()

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decoding siteverify response: %w", err)
	}
	if !result.Success {
		return ErrTokenRejected
	}
	return nil
}
