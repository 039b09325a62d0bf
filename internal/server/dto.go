package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"propcheck/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Name       string `json:"name" validate:"required"`
	Company    string `json:"company,omitempty"`
	OwnerEmail string `json:"owner_email" validate:"required,email"`
}

// Response payloads

type JobSubmittedResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status" enum:"pending"`
	Message string `json:"message"`
}

type JobStatusResponse struct {
	JobID       string          `json:"job_id"`
	UserID      string          `json:"user_id"`
	ChallengeID string          `json:"challenge_id"`
	Status      string          `json:"status" enum:"pending,processing,completed,failed"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
	CompletedAt *string         `json:"completed_at,omitempty" format:"date-time"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
}

type JobListResponse struct {
	Jobs  []JobStatusResponse `json:"jobs"`
	Count int                 `json:"count"`
}

type RegisterResponse struct {
	APIKey        string `json:"api_key"`
	WebhookSecret string `json:"webhook_secret"`
	OwnerEmail    string `json:"owner_email"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// Conversion helpers

func jobStatusResponse(j domain.Job) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:       j.ID,
		UserID:      j.UserID,
		ChallengeID: j.ChallengeID,
		Status:      string(j.Status),
		CreatedAt:   j.CreatedAt.Format(timeLayout),
		Error:       j.Error,
	}
	if j.CompletedAt != nil {
		s := j.CompletedAt.Format(timeLayout)
		resp.CompletedAt = &s
	}
	if j.Result != nil {
		// Stored results are the exact bytes the worker serialized; echo them
		// without re-encoding so webhook signatures stay verifiable.
		resp.Result = json.RawMessage(*j.Result)
	}
	return resp
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// resolveRules replaces a preset reference with the named rule set. The
// resolved request carries concrete rules on every downstream path.
func resolveRules(req *domain.CheckRequest, presets map[string]domain.Rules) error {
	if req.RulesPreset == "" {
		return nil
	}
	rules, ok := presets[req.RulesPreset]
	if !ok {
		return fmt.Errorf("unknown rules_preset %q", req.RulesPreset)
	}
	req.Rules = rules
	return nil
}

// maskSecret keeps the first two characters of a credential for log
// correlation and hides the rest.
func maskSecret(s string) string {
	if len(s) <= 2 {
		return "***"
	}
	return s[:2] + strings.Repeat("*", 6)
}
