package domain

import "time"

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further status transitions are allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type ChallengeStatus string

const (
	ChallengePassed ChallengeStatus = "passed"
	ChallengeFailed ChallengeStatus = "failed"
)

type ViolationKind string

const (
	ViolationMinimumTradeDuration ViolationKind = "minimum_trade_duration"
	ViolationMaximumDrawdown      ViolationKind = "maximum_drawdown"
	ViolationProfitTarget         ViolationKind = "profit_target"
)

type DealEntry int

const (
	DealEntryIn  DealEntry = 0
	DealEntryOut DealEntry = 1
)

type Direction int

const (
	DirectionBuy  Direction = 0
	DirectionSell Direction = 1
)

// Deal is a single trade execution event reported by the terminal. Deals are
// the source of truth for realized P&L; positions are derived from them.
type Deal struct {
	Time       time.Time `json:"time"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"type"`
	Entry      DealEntry `json:"entry"`
	Volume     float64   `json:"volume"`
	Price      float64   `json:"price"`
	Profit     float64   `json:"profit"`
	Swap       float64   `json:"swap"`
	Commission float64   `json:"commission"`
	PositionID int64     `json:"position_id"`
}

// Position aggregates the deals that share a position id into one
// opened-and-closed trade.
type Position struct {
	Ticket     int64     `json:"ticket"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"type"`
	Volume     float64   `json:"volume"`
	OpenTime   time.Time `json:"open_time"`
	CloseTime  time.Time `json:"close_time"`
	OpenPrice  float64   `json:"open_price"`
	ClosePrice float64   `json:"close_price"`
	Profit     float64   `json:"profit"`
	Swap       float64   `json:"swap"`
	Commission float64   `json:"commission"`
}

// Closed reports whether both legs of the position have been observed.
// Only closed positions feed the detectors and the equity curve.
func (p Position) Closed() bool {
	return !p.OpenTime.IsZero() && !p.CloseTime.IsZero()
}

// Duration is the holding time of a closed position.
func (p Position) Duration() time.Duration {
	return p.CloseTime.Sub(p.OpenTime)
}

// EquityPoint is one sample of the reconstructed equity curve.
type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

// Rules is the challenge rule set an account is evaluated against.
// MaxDailyLossPercent is accepted and validated but not evaluated by any
// detector yet.
type Rules struct {
	MaxDrawdownPercent  float64  `json:"max_drawdown_percent" validate:"gt=0,lte=100"`
	ProfitTargetPercent float64  `json:"profit_target_percent" validate:"gt=0"`
	MaxDailyLossPercent *float64 `json:"max_daily_loss_percent,omitempty" validate:"omitempty,gt=0,lte=100"`
}

// Violation is one broken challenge rule. Only the fields relevant to the
// violated rule are populated; Description is always set.
type Violation struct {
	Rule                ViolationKind `json:"rule"`
	Description         string        `json:"description"`
	Ticket              *int64        `json:"ticket,omitempty"`
	Symbol              *string       `json:"symbol,omitempty"`
	OpenTime            *time.Time    `json:"open_time,omitempty"`
	CloseTime           *time.Time    `json:"close_time,omitempty"`
	DurationSeconds     *int          `json:"duration_seconds,omitempty"`
	Timestamp           *time.Time    `json:"timestamp,omitempty"`
	Equity              *float64      `json:"equity,omitempty"`
	DrawdownPercent     *float64      `json:"drawdown_percent,omitempty"`
	MaxAllowedPercent   *float64      `json:"max_allowed_percent,omitempty"`
	ProfitPercent       *float64      `json:"profit_percent,omitempty"`
	ProfitTargetPercent *float64      `json:"profit_target_percent,omitempty"`
}

// Metrics is the account snapshot reported alongside the verdict.
type Metrics struct {
	InitialBalance     float64 `json:"initial_balance"`
	CurrentBalance     float64 `json:"current_balance"`
	CurrentEquity      float64 `json:"current_equity"`
	ProfitPercent      float64 `json:"profit_percent"`
	ProfitTarget       float64 `json:"profit_target_percent"`
	ProfitTargetMet    bool    `json:"profit_target_met"`
	MaxDrawdownPercent float64 `json:"max_drawdown_percent"`
	MaxDrawdownLimit   float64 `json:"max_drawdown_limit"`
	TotalTrades        int     `json:"total_trades"`
	TradesUnderFloor   int     `json:"trades_under_4min"`
}

// CheckResult is the immutable outcome of one challenge evaluation.
type CheckResult struct {
	JobID       string          `json:"job_id"`
	UserID      string          `json:"user_id"`
	ChallengeID string          `json:"challenge_id"`
	Status      ChallengeStatus `json:"status" enum:"passed,failed"`
	Metrics     Metrics         `json:"metrics"`
	Violations  []Violation     `json:"violations"`
	Timestamp   time.Time       `json:"timestamp" format:"date-time"`
}

// Job is one queued evaluation. After creation only the worker that picks it
// up writes to it.
type Job struct {
	ID          string     `json:"job_id"`
	UserID      string     `json:"user_id"`
	ChallengeID string     `json:"challenge_id"`
	Status      JobStatus  `json:"status" enum:"pending,processing,completed,failed"`
	Owner       string     `json:"-"`
	CreatedAt   time.Time  `json:"created_at" format:"date-time"`
	CompletedAt *time.Time `json:"completed_at,omitempty" format:"date-time"`
	Result      *string    `json:"-"`
	Error       *string    `json:"error,omitempty"`
}

// APIKey is a tenant credential. The key itself is never stored, only its
// SHA-256 hash; the webhook secret signs outbound result deliveries.
type APIKey struct {
	ID            int64     `json:"id"`
	KeyHash       string    `json:"key_hash"`
	Name          string    `json:"name"`
	Company       string    `json:"company,omitempty"`
	OwnerEmail    string    `json:"owner_email"`
	WebhookSecret string    `json:"-"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at" format:"date-time"`
}
