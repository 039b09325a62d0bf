package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"propcheck/internal/domain"
)

const deliveryTimeout = 30 * time.Second

// SignatureHeader carries the hex HMAC-SHA256 of the exact body bytes,
// computed with the tenant's webhook secret.
const SignatureHeader = "X-Signature"

// Dispatcher delivers a completed check result to the caller's callback URL.
// Delivery is best effort: one attempt, outcome logged, job status untouched.
type Dispatcher struct {
	Secrets domain.SecretSource
	Client  *http.Client
	Log     zerolog.Logger

	// AllowPrivate permits loopback and private callback targets. Local
	// development only; production callers leave it off.
	AllowPrivate bool
}

func NewDispatcher(secrets domain.SecretSource, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Secrets: secrets,
		Client:  &http.Client{Timeout: deliveryTimeout},
		Log:     log,
	}
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Deliver posts the serialized result to callbackURL, signed with the owner's
// webhook secret. Unsafe URLs and missing secrets skip delivery; any failure
// is returned for logging only and must not affect the job.
func (d *Dispatcher) Deliver(ctx context.Context, owner, callbackURL string, payload []byte) error {
	if !d.AllowPrivate && !IsSafeCallback(callbackURL) {
		d.Log.Warn().Str("callback_url", callbackURL).Msg("blocked unsafe callback URL")
		return nil
	}

	secret, err := d.Secrets.WebhookSecret(ctx, owner)
	if err != nil {
		d.Log.Warn().Err(err).Str("owner", owner).Msg("no webhook secret, skipping delivery")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, Sign(payload, secret))

	res, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("webhook status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	d.Log.Info().Str("callback_url", callbackURL).Msg("webhook delivered")
	return nil
}
