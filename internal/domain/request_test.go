package domain_test

import (
	"strings"
	"testing"

	"propcheck/internal/domain"
)

func validRequest() domain.CheckRequest {
	return domain.CheckRequest{
		UserID:         "user-1",
		ChallengeID:    "challenge-1",
		TerminalLogin:  "12345",
		TerminalPass:   "secret",
		TerminalServer: "Broker-Demo",
		InitialBalance: 10000,
		Rules: domain.Rules{
			MaxDrawdownPercent:  10,
			ProfitTargetPercent: 8,
		},
	}
}

func TestValidateAcceptsCompleteRequest(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
}

func TestValidateNamesTheOffendingField(t *testing.T) {
	r := validRequest()
	r.TerminalPass = ""
	err := r.Validate()
	if err == nil || !strings.Contains(err.Error(), "terminal_password") {
		t.Fatalf("err = %v, want terminal_password named", err)
	}

	r = validRequest()
	r.InitialBalance = 0
	err = r.Validate()
	if err == nil || !strings.Contains(err.Error(), "initial_balance") {
		t.Fatalf("err = %v, want initial_balance named", err)
	}

	r = validRequest()
	r.Rules.MaxDrawdownPercent = 0
	err = r.Validate()
	if err == nil || !strings.Contains(err.Error(), "rules.max_drawdown_percent") {
		t.Fatalf("err = %v, want rules.max_drawdown_percent named", err)
	}
}

func TestValidatePresetSkipsInlineRules(t *testing.T) {
	r := validRequest()
	r.Rules = domain.Rules{}
	r.RulesPreset = "phase1"
	if err := r.Validate(); err != nil {
		t.Fatalf("preset request rejected: %v", err)
	}
}

func TestValidateRulesRanges(t *testing.T) {
	r := validRequest()
	r.Rules.MaxDrawdownPercent = 150
	if err := r.Validate(); err == nil {
		t.Fatalf("drawdown over 100 accepted")
	}

	r = validRequest()
	bad := -5.0
	r.Rules.MaxDailyLossPercent = &bad
	if err := r.Validate(); err == nil {
		t.Fatalf("negative daily loss accepted")
	}
}

func TestValidateCallbackURL(t *testing.T) {
	r := validRequest()
	r.CallbackURL = "https://example.com/hook"
	if err := r.Validate(); err != nil {
		t.Fatalf("https callback rejected: %v", err)
	}

	r.CallbackURL = "ftp://example.com/hook"
	if err := r.Validate(); err == nil || !strings.Contains(err.Error(), "callback_url") {
		t.Fatalf("err = %v, want callback_url scheme rejection", err)
	}

	r.CallbackURL = "https://example.com/" + strings.Repeat("x", 2048)
	if err := r.Validate(); err == nil || !strings.Contains(err.Error(), "too long") {
		t.Fatalf("err = %v, want length rejection", err)
	}
}
