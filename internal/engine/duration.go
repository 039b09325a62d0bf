package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"propcheck/internal/domain"
)

// MinimumTradeDuration is the floor every position must be held for.
const MinimumTradeDuration = 240 * time.Second

// DurationDetector flags positions closed before the minimum holding time.
type DurationDetector struct {
	Log zerolog.Logger
}

// Evaluate collects every position held strictly less than the floor. All
// offenders are aggregated into a single violation whose description lists
// each ticket, while the structured fields carry only the first offender in
// iteration order.
func (d DurationDetector) Evaluate(positions []domain.Position) []domain.Violation {
	var violations []domain.Violation
	var offenders []domain.Position

	for _, pos := range positions {
		if !pos.Closed() {
			d.Log.Warn().Int64("ticket", pos.Ticket).
				Time("open_time", pos.OpenTime).Time("close_time", pos.CloseTime).
				Msg("position missing open/close time, skipping duration check")
			continue
		}
		if pos.Duration() < MinimumTradeDuration {
			offenders = append(offenders, pos)
			d.Log.Warn().Int64("ticket", pos.Ticket).Str("symbol", pos.Symbol).
				Dur("held", pos.Duration()).Msg("position held under minimum duration")
		}
	}

	if len(offenders) == 0 {
		return violations
	}

	details := make([]string, 0, len(offenders))
	for _, pos := range offenders {
		secs := int(pos.Duration().Seconds())
		details = append(details, fmt.Sprintf("#%d (%s: %dm %ds)", pos.Ticket, pos.Symbol, secs/60, secs%60))
	}

	first := offenders[0]
	firstSecs := int(first.Duration().Seconds())
	violations = append(violations, domain.Violation{
		Rule: domain.ViolationMinimumTradeDuration,
		Description: fmt.Sprintf("4-minute rule violated: %d trades held < 4 minutes. Trades: %s",
			len(offenders), strings.Join(details, ", ")),
		Ticket:          &first.Ticket,
		Symbol:          &first.Symbol,
		OpenTime:        &first.OpenTime,
		CloseTime:       &first.CloseTime,
		DurationSeconds: &firstSecs,
	})
	return violations
}
