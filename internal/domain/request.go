package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxCallbackURLLength = 2048

// CheckRequest is a challenge evaluation request. RulesPreset may name a
// server-side preset instead of supplying Rules inline.
type CheckRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	ChallengeID    string `json:"challenge_id" validate:"required"`
	TerminalLogin  string `json:"terminal_login" validate:"required"`
	TerminalPass   string `json:"terminal_password" validate:"required"`
	TerminalServer string `json:"terminal_server" validate:"required"`
	InitialBalance float64 `json:"initial_balance" validate:"gt=0"`
	Rules          Rules   `json:"rules" validate:"-"`
	RulesPreset    string  `json:"rules_preset,omitempty"`
	CallbackURL    string  `json:"callback_url,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the request independently of the transport so the
// synchronous and queued paths reject the same inputs.
func (r CheckRequest) Validate() error {
	if err := firstValidationError(validate.Struct(r)); err != nil {
		return err
	}
	// Inline rules are only required when no preset names them.
	if r.RulesPreset == "" {
		if err := firstValidationError(validate.Struct(r.Rules)); err != nil {
			return err
		}
	}
	if r.CallbackURL != "" {
		if !strings.HasPrefix(r.CallbackURL, "http://") && !strings.HasPrefix(r.CallbackURL, "https://") {
			return fmt.Errorf("invalid callback_url: must be an HTTP or HTTPS URL")
		}
		if len(r.CallbackURL) > maxCallbackURLLength {
			return fmt.Errorf("invalid callback_url: too long (max %d characters)", maxCallbackURLLength)
		}
	}
	return nil
}

func firstValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid field %s: failed %s constraint", fieldJSONName(fe.Field()), fe.Tag())
	}
	return err
}

func fieldJSONName(field string) string {
	names := map[string]string{
		"UserID":              "user_id",
		"ChallengeID":         "challenge_id",
		"TerminalLogin":       "terminal_login",
		"TerminalPass":        "terminal_password",
		"TerminalServer":      "terminal_server",
		"InitialBalance":      "initial_balance",
		"MaxDrawdownPercent":  "rules.max_drawdown_percent",
		"ProfitTargetPercent": "rules.profit_target_percent",
		"MaxDailyLossPercent": "rules.max_daily_loss_percent",
		"CallbackURL":         "callback_url",
	}
	if n, ok := names[field]; ok {
		return n
	}
	return strings.ToLower(field)
}
