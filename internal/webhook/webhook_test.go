package webhook_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"propcheck/internal/webhook"
)

type staticSecrets struct {
	secret string
	err    error
}

func (s staticSecrets) WebhookSecret(ctx context.Context, owner string) (string, error) {
	return s.secret, s.err
}

func TestIsSafeCallback(t *testing.T) {
	cases := []struct {
		url  string
		safe bool
	}{
		{"https://api.example.com/hook", true},
		{"http://api.example.com/hook", true},
		{"http://127.0.0.1/hook", false},
		{"http://localhost:8080/hook", false},
		{"http://[::1]/hook", false},
		{"https://10.0.0.5/hook", false},
		{"https://192.168.1.10/hook", false},
		{"ftp://example.com/hook", false},
		{"not a url", false},
		{"https:///hook", false},
	}
	for _, tc := range cases {
		if got := webhook.IsSafeCallback(tc.url); got != tc.safe {
			t.Errorf("IsSafeCallback(%q) = %v, want %v", tc.url, got, tc.safe)
		}
	}
}

func TestDeliverSignsBody(t *testing.T) {
	payload := []byte(`{"job_id":"job_abc123def456","status":"passed"}`)
	secret := "whsec_test"

	var gotBody []byte
	var gotSignature string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get(webhook.SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := webhook.NewDispatcher(staticSecrets{secret: secret}, zerolog.Nop())
	d.AllowPrivate = true
	if err := d.Deliver(context.Background(), "owner@example.com", srv.URL, payload); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	if string(gotBody) != string(payload) {
		t.Fatalf("delivered body differs: %s", gotBody)
	}
	if gotSignature != webhook.Sign(payload, secret) {
		t.Fatalf("signature %q does not match body", gotSignature)
	}
}

func TestDeliverNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := webhook.NewDispatcher(staticSecrets{secret: "s"}, zerolog.Nop())
	d.AllowPrivate = true
	if err := d.Deliver(context.Background(), "owner@example.com", srv.URL, []byte("{}")); err == nil {
		t.Fatalf("expected delivery error on 502")
	}
}

func TestDeliverSkipsUnsafeURL(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	// httptest listens on loopback, so the dispatcher must refuse it.
	d := webhook.NewDispatcher(staticSecrets{secret: "s"}, zerolog.Nop())
	if err := d.Deliver(context.Background(), "owner@example.com", srv.URL, []byte("{}")); err != nil {
		t.Fatalf("unsafe URL should be skipped silently, got %v", err)
	}
	if called {
		t.Fatalf("unsafe URL must never be contacted")
	}
}

func TestDeliverMissingSecretSkips(t *testing.T) {
	d := webhook.NewDispatcher(staticSecrets{err: errors.New("not found")}, zerolog.Nop())
	if err := d.Deliver(context.Background(), "owner@example.com", "https://api.example.com/hook", []byte("{}")); err != nil {
		t.Fatalf("missing secret skips delivery, got %v", err)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	a := webhook.Sign([]byte("body"), "secret")
	b := webhook.Sign([]byte("body"), "secret")
	if a != b || len(a) != 64 {
		t.Fatalf("signature should be a stable hex sha256: %q %q", a, b)
	}
}
