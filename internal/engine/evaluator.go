package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"propcheck/internal/domain"
	"propcheck/internal/logger"
)

// historyStart bounds how far back deal history is requested.
var historyStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Evaluator runs one challenge check: it pulls account data through the
// session provider, applies every detector and assembles the verdict.
// Rule evaluation itself never fails; only login and data fetches do.
type Evaluator struct {
	Provider domain.SessionProvider
	Log      zerolog.Logger
	Now      func() time.Time
}

func (e Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Evaluate performs the full challenge check for an already-acquired session.
func (e Evaluator) Evaluate(ctx context.Context, req domain.CheckRequest, jobID string) (domain.CheckResult, error) {
	log := e.Log.With().Str("job_id", jobID).Logger()
	log.Info().Str("user_id", logger.Sanitize(req.UserID)).Str("challenge_id", logger.Sanitize(req.ChallengeID)).Msg("starting challenge check")

	if err := e.Provider.Login(ctx, req.TerminalLogin, req.TerminalPass, req.TerminalServer); err != nil {
		return domain.CheckResult{}, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	account, err := e.Provider.AccountSnapshot(ctx)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("%w: account snapshot: %v", ErrDataUnavailable, err)
	}

	deals, err := e.Provider.DealHistory(ctx, historyStart)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("%w: deal history: %v", ErrDataUnavailable, err)
	}
	positions, err := e.Provider.ClosedPositions(ctx, historyStart)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("%w: position history: %v", ErrDataUnavailable, err)
	}
	log.Info().Int("deals", len(deals)).Int("positions", len(positions)).Msg("history retrieved")

	var violations []domain.Violation

	duration := DurationDetector{Log: log}
	violations = append(violations, duration.Evaluate(positions)...)

	tradesUnderFloor := 0
	for _, pos := range positions {
		if pos.Closed() && pos.Duration() < MinimumTradeDuration {
			tradesUnderFloor++
		}
	}

	curve := CurveBuilder{Provider: e.Provider, Log: log, Now: e.Now}.Build(ctx, req.InitialBalance, deals, positions)
	ddViolations, maxDrawdown := DrawdownDetector{}.Evaluate(curve, req.InitialBalance, req.Rules.MaxDrawdownPercent, account.Currency)
	violations = append(violations, ddViolations...)

	profitPercent := (account.Balance - req.InitialBalance) / req.InitialBalance * 100
	profitTargetMet := profitPercent >= req.Rules.ProfitTargetPercent
	if !profitTargetMet {
		rounded := round2(profitPercent)
		target := req.Rules.ProfitTargetPercent
		violations = append(violations, domain.Violation{
			Rule: domain.ViolationProfitTarget,
			Description: fmt.Sprintf("Profit target not met: %.2f%% (required: %g%%)",
				profitPercent, target),
			ProfitPercent:       &rounded,
			ProfitTargetPercent: &target,
		})
	}

	status := domain.ChallengePassed
	if len(violations) > 0 {
		status = domain.ChallengeFailed
	}
	if violations == nil {
		violations = []domain.Violation{}
	}

	result := domain.CheckResult{
		JobID:       jobID,
		UserID:      req.UserID,
		ChallengeID: req.ChallengeID,
		Status:      status,
		Metrics: domain.Metrics{
			InitialBalance:     req.InitialBalance,
			CurrentBalance:     account.Balance,
			CurrentEquity:      account.Equity,
			ProfitPercent:      round2(profitPercent),
			ProfitTarget:       req.Rules.ProfitTargetPercent,
			ProfitTargetMet:    profitTargetMet,
			MaxDrawdownPercent: round2(maxDrawdown),
			MaxDrawdownLimit:   req.Rules.MaxDrawdownPercent,
			TotalTrades:        len(positions),
			TradesUnderFloor:   tradesUnderFloor,
		},
		Violations: violations,
		Timestamp:  e.now(),
	}
	log.Info().Str("status", string(status)).Int("violations", len(violations)).Msg("challenge check complete")
	return result, nil
}
