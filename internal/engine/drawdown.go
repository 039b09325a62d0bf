package engine

import (
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"propcheck/internal/domain"
)

// balancePrinter renders balances with thousands separators, the way the
// trader sees them on their statement ("10,000.00 USD").
var balancePrinter = message.NewPrinter(language.English)

// DrawdownDetector checks whether equity ever fell too far below its running
// peak. At most one violation is emitted per evaluation: the worst breach.
type DrawdownDetector struct{}

// Evaluate scans the curve left to right. The returned maximum drawdown is
// always peak-relative and is reported even when no violation occurred.
//
// The violation message describes the drop measured against the initial
// balance, which is what the trader recognizes; the breach decision and the
// structured drawdown_percent field use the peak-relative figure. The two
// numbers are distinct on purpose.
func (DrawdownDetector) Evaluate(curve []domain.EquityPoint, initialBalance, maxDrawdownPercent float64, currency string) ([]domain.Violation, float64) {
	var violations []domain.Violation
	maxDrawdownReached := 0.0

	if len(curve) == 0 {
		return violations, maxDrawdownReached
	}
	if currency == "" {
		currency = "USD"
	}

	peak := initialBalance
	worstDrawdown := 0.0
	worstEquity := initialBalance
	var worstTime time.Time

	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		dd := (peak - point.Equity) / peak * 100
		if dd > maxDrawdownReached {
			maxDrawdownReached = dd
		}
		// Strict comparisons: ties keep the first-seen breach.
		if dd > maxDrawdownPercent && dd > worstDrawdown {
			worstDrawdown = dd
			worstTime = point.Time
			worstEquity = point.Equity
		}
	}

	if worstDrawdown > maxDrawdownPercent {
		fromInitial := (initialBalance - worstEquity) / initialBalance * 100
		rounded := round2(worstDrawdown)
		violations = append(violations, domain.Violation{
			Rule:              domain.ViolationMaximumDrawdown,
			Timestamp:         &worstTime,
			Equity:            &worstEquity,
			DrawdownPercent:   &rounded,
			MaxAllowedPercent: &maxDrawdownPercent,
			Description: balancePrinter.Sprintf(
				"Drawdown Rule Violation: Your account dropped %.1f%% from your starting balance of %.2f %s to %.2f %s on %s. Maximum allowed drawdown is %g%%. This breach occurred during live trading and cannot be reversed by subsequent profits.",
				math.Abs(fromInitial), initialBalance, currency, worstEquity, currency,
				worstTime.Format("2006-01-02 at 15:04"), maxDrawdownPercent),
		})
	}

	return violations, maxDrawdownReached
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
