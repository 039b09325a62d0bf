package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"propcheck/internal/domain"
	"propcheck/internal/engine"
	"propcheck/internal/logger"
	"propcheck/internal/pipeline"
	"propcheck/internal/pool"
	"propcheck/internal/ratelimit"
	"propcheck/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Repo     repo.Repo
	Pipeline *pipeline.Pipeline
	Pool     *pool.Pool
	Presets  map[string]domain.Rules
	Auth     AuthConfig
	Log      zerolog.Logger
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"invalid field user_id: failed required constraint"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the challenge evaluation API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	limiter := ratelimit.New()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Repo, limiter))

	hcfg := huma.DefaultConfig("PropCheck API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerCheck(group, cfg)
	registerJobs(group, cfg)
	registerRegister(group, cfg)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", "job not found", nil)
	case errors.Is(err, pipeline.ErrQueueFull), errors.Is(err, pool.ErrExhausted):
		return newAPIError(http.StatusServiceUnavailable, "overloaded", err.Error(), nil)
	case errors.Is(err, engine.ErrAuthentication):
		return newAPIError(http.StatusUnprocessableEntity, "terminal_auth_failed", err.Error(), nil)
	case errors.Is(err, engine.ErrDataUnavailable):
		return newAPIError(http.StatusBadGateway, "terminal_unavailable", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "unknown") || strings.Contains(lowered, "required") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "overloaded"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerCheck(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-check",
		Method:        http.MethodPost,
		Path:          "/check",
		Summary:       "Submit a challenge evaluation",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusTooManyRequests,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body domain.CheckRequest `json:"body"`
	}) (*struct {
		Body JobSubmittedResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req := input.Body
		if err := req.Validate(); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		if err := resolveRules(&req, cfg.Presets); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		cfg.Log.Info().
			Str("user_id", logger.Sanitize(req.UserID)).
			Str("challenge_id", logger.Sanitize(req.ChallengeID)).
			Str("terminal_login", maskSecret(req.TerminalLogin)).
			Msg("check submitted")
		job, err := cfg.Pipeline.Submit(ctx, owner, req)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobSubmittedResponse `json:"body"`
		}{Body: JobSubmittedResponse{
			JobID:   job.ID,
			Status:  string(job.Status),
			Message: "Challenge check queued for processing",
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "sync-check",
		Method:      http.MethodPost,
		Path:        "/check/sync",
		Summary:     "Run a challenge evaluation inline",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusUnprocessableEntity,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body domain.CheckRequest `json:"body"`
	}) (*struct {
		Body domain.CheckResult `json:"body"`
	}, error) {
		if _, authErr := ownerFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		req := input.Body
		if err := req.Validate(); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		if err := resolveRules(&req, cfg.Presets); err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		result, err := pipeline.RunCheck(ctx, cfg.Pool, req, pipeline.NewJobID(), cfg.Log, time.Now)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CheckResult `json:"body"`
		}{Body: result}, nil
	})
}

func registerJobs(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/job/{job_id}",
		Summary:     "Job status and result",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		JobID string `path:"job_id"`
	}) (*struct {
		Body JobStatusResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		job, err := cfg.Repo.GetJobForOwner(ctx, input.JobID, owner)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body JobStatusResponse `json:"body"`
		}{Body: jobStatusResponse(job)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "Recent jobs for the caller",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Limit int `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body JobListResponse `json:"body"`
	}, error) {
		owner, authErr := ownerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		jobs, err := cfg.Repo.ListJobsForOwner(ctx, owner, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		resp := JobListResponse{Jobs: []JobStatusResponse{}}
		for _, j := range jobs {
			resp.Jobs = append(resp.Jobs, jobStatusResponse(j))
		}
		resp.Count = len(resp.Jobs)
		return &struct {
			Body JobListResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerRegister(api huma.API, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-tenant",
		Method:        http.MethodPost,
		Path:          "/register",
		Summary:       "Issue a tenant API key",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body RegisterRequest `json:"body"`
	}) (*struct {
		Body RegisterResponse `json:"body"`
	}, error) {
		// Key issuance is restricted to bearer-token callers; tenants holding
		// only an API key cannot mint further keys.
		principal, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		if principal.Source != "jwt" {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "bearer token required to issue keys", nil)
		}
		if strings.TrimSpace(input.Body.Name) == "" || strings.TrimSpace(input.Body.OwnerEmail) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name and owner_email are required", nil)
		}
		plainKey, key, err := cfg.Repo.CreateAPIKey(ctx, input.Body.Name, input.Body.Company, input.Body.OwnerEmail)
		if err != nil {
			return nil, handleError(err)
		}
		cfg.Log.Info().Str("owner", key.OwnerEmail).Str("name", key.Name).Msg("api key issued")
		return &struct {
			Body RegisterResponse `json:"body"`
		}{Body: RegisterResponse{
			APIKey:        plainKey,
			WebhookSecret: key.WebhookSecret,
			OwnerEmail:    key.OwnerEmail,
			CreatedAt:     key.CreatedAt.Format(timeLayout),
		}}, nil
	})
}
