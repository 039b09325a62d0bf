package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"propcheck/internal/domain"
	"propcheck/internal/engine"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeProvider struct {
	loginErr   error
	accountErr error
	dealsErr   error
	account    domain.AccountSnapshot
	deals      []domain.Deal
	positions  []domain.Position
	bars       map[string][]domain.Bar
	info       domain.InstrumentInfo
	logins     int
}

func (f *fakeProvider) Login(ctx context.Context, login, password, server string) error {
	f.logins++
	return f.loginErr
}

func (f *fakeProvider) AccountSnapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	return f.account, f.accountErr
}

func (f *fakeProvider) DealHistory(ctx context.Context, from time.Time) ([]domain.Deal, error) {
	return f.deals, f.dealsErr
}

func (f *fakeProvider) ClosedPositions(ctx context.Context, from time.Time) ([]domain.Position, error) {
	return f.positions, nil
}

func (f *fakeProvider) MinuteBars(ctx context.Context, symbol string, from, to time.Time) ([]domain.Bar, error) {
	return f.bars[symbol], nil
}

func (f *fakeProvider) InstrumentInfo(ctx context.Context, symbol string) (domain.InstrumentInfo, error) {
	return f.info, nil
}

func (f *fakeProvider) Close(ctx context.Context) error { return nil }

func closedPosition(ticket int64, symbol string, open time.Time, held time.Duration) domain.Position {
	return domain.Position{
		Ticket:    ticket,
		Symbol:    symbol,
		Volume:    1,
		OpenTime:  open,
		CloseTime: open.Add(held),
	}
}

func testRequest() domain.CheckRequest {
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

func TestCurveStepsOnOutDeals(t *testing.T) {
	outTime := t0.Add(30 * time.Minute)
	deals := []domain.Deal{
		{Time: t0, Entry: domain.DealEntryIn, Symbol: "EURUSD", PositionID: 1},
		{Time: outTime, Entry: domain.DealEntryOut, Symbol: "EURUSD", PositionID: 1, Profit: 800},
	}
	builder := engine.CurveBuilder{Provider: &fakeProvider{}, Log: zerolog.Nop()}
	curve := builder.Build(context.Background(), 10000, deals, nil)

	if len(curve) != 2 {
		t.Fatalf("expected 2 points, got %d: %+v", len(curve), curve)
	}
	if !curve[0].Time.Equal(t0) || curve[0].Equity != 10000 {
		t.Fatalf("seed point wrong: %+v", curve[0])
	}
	if !curve[1].Time.Equal(outTime) || curve[1].Equity != 10800 {
		t.Fatalf("step point wrong: %+v", curve[1])
	}
}

func TestCurveFloatingValuation(t *testing.T) {
	closeTime := t0.Add(10 * time.Minute)
	pos := domain.Position{
		Ticket: 7, Symbol: "EURUSD", Direction: domain.DirectionBuy,
		Volume: 1, OpenTime: t0, CloseTime: closeTime, OpenPrice: 1.1000,
	}
	deals := []domain.Deal{
		{Time: t0, Entry: domain.DealEntryIn, PositionID: 7},
		{Time: closeTime, Entry: domain.DealEntryOut, PositionID: 7, Profit: 500},
	}
	barTime := t0.Add(5 * time.Minute)
	provider := &fakeProvider{
		bars: map[string][]domain.Bar{
			"EURUSD": {{Time: barTime, Close: 1.0990}},
		},
		info: domain.InstrumentInfo{ContractSize: 100000},
	}
	builder := engine.CurveBuilder{Provider: provider, Log: zerolog.Nop()}
	curve := builder.Build(context.Background(), 10000, deals, []domain.Position{pos})

	var found bool
	for _, p := range curve {
		if p.Time.Equal(barTime) {
			found = true
			// 10000 realized, floating 1 * 100000 * (1.0990 - 1.1000) = -100
			if p.Equity != 9900 {
				t.Fatalf("floating equity = %v, want 9900", p.Equity)
			}
		}
	}
	if !found {
		t.Fatalf("no intraday point at %v in %+v", barTime, curve)
	}
}

func TestCurveDuplicateTimestampsKeepLast(t *testing.T) {
	deals := []domain.Deal{
		{Time: t0, Entry: domain.DealEntryOut, Profit: 100},
		{Time: t0, Entry: domain.DealEntryOut, Profit: -300},
	}
	builder := engine.CurveBuilder{Provider: &fakeProvider{}, Log: zerolog.Nop()}
	curve := builder.Build(context.Background(), 1000, deals, nil)

	if len(curve) != 1 {
		t.Fatalf("expected collapsed curve, got %d points", len(curve))
	}
	if curve[0].Equity != 800 {
		t.Fatalf("last write should win: got %v, want 800", curve[0].Equity)
	}
}

func TestDurationDetector(t *testing.T) {
	cases := []struct {
		name      string
		held      []time.Duration
		offenders int
	}{
		{"under floor", []time.Duration{210 * time.Second}, 1},
		{"over floor", []time.Duration{300 * time.Second}, 0},
		{"exactly at floor", []time.Duration{engine.MinimumTradeDuration}, 0},
		{"mixed", []time.Duration{60 * time.Second, 500 * time.Second, 239 * time.Second}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var positions []domain.Position
			for i, held := range tc.held {
				positions = append(positions, closedPosition(int64(i+1), "EURUSD", t0, held))
			}
			violations := engine.DurationDetector{Log: zerolog.Nop()}.Evaluate(positions)
			if tc.offenders == 0 {
				if len(violations) != 0 {
					t.Fatalf("expected no violation, got %+v", violations)
				}
				return
			}
			if len(violations) != 1 {
				t.Fatalf("offenders are aggregated into one violation, got %d", len(violations))
			}
			v := violations[0]
			if v.Rule != domain.ViolationMinimumTradeDuration {
				t.Fatalf("rule = %s", v.Rule)
			}
			if !strings.Contains(v.Description, "4-minute rule violated") {
				t.Fatalf("description = %q", v.Description)
			}
			if v.Ticket == nil || *v.Ticket != 1 {
				t.Fatalf("structured fields should carry the first offender, got %+v", v.Ticket)
			}
		})
	}
}

func TestDurationDetectorSkipsOpenPositions(t *testing.T) {
	positions := []domain.Position{{Ticket: 9, Symbol: "EURUSD", OpenTime: t0}}
	violations := engine.DurationDetector{Log: zerolog.Nop()}.Evaluate(positions)
	if len(violations) != 0 {
		t.Fatalf("open positions must not be flagged: %+v", violations)
	}
}

func TestDrawdownDetectorWorstBreach(t *testing.T) {
	curve := []domain.EquityPoint{
		{Time: t0, Equity: 10000},
		{Time: t0.Add(time.Minute), Equity: 10800},
		{Time: t0.Add(2 * time.Minute), Equity: 9500},
		{Time: t0.Add(3 * time.Minute), Equity: 9200},
		{Time: t0.Add(4 * time.Minute), Equity: 10500},
	}
	violations, maxDD := engine.DrawdownDetector{}.Evaluate(curve, 10000, 10, "USD")

	if len(violations) != 1 {
		t.Fatalf("at most one drawdown violation, got %d", len(violations))
	}
	v := violations[0]
	// Worst point is 9200 against peak 10800: 14.81%.
	if v.DrawdownPercent == nil || *v.DrawdownPercent != 14.81 {
		t.Fatalf("drawdown_percent = %v, want 14.81", v.DrawdownPercent)
	}
	if v.Equity == nil || *v.Equity != 9200 {
		t.Fatalf("equity = %v, want 9200", v.Equity)
	}
	if !strings.Contains(v.Description, "Drawdown Rule Violation") {
		t.Fatalf("description = %q", v.Description)
	}
	if !strings.Contains(v.Description, "10,000.00 USD") || !strings.Contains(v.Description, "9,200.00 USD") {
		t.Fatalf("balances not thousands-separated: %q", v.Description)
	}
	if maxDD < 14.81 || maxDD > 14.82 {
		t.Fatalf("max drawdown reached = %v", maxDD)
	}
}

func TestDrawdownDetectorNoBreachStillReportsMax(t *testing.T) {
	curve := []domain.EquityPoint{
		{Time: t0, Equity: 10000},
		{Time: t0.Add(time.Minute), Equity: 9800},
		{Time: t0.Add(2 * time.Minute), Equity: 10200},
	}
	violations, maxDD := engine.DrawdownDetector{}.Evaluate(curve, 10000, 10, "USD")
	if len(violations) != 0 {
		t.Fatalf("no breach expected: %+v", violations)
	}
	if maxDD != 2 {
		t.Fatalf("max drawdown = %v, want 2", maxDD)
	}
}

func TestDrawdownDetectorEmptyCurve(t *testing.T) {
	violations, maxDD := engine.DrawdownDetector{}.Evaluate(nil, 10000, 10, "USD")
	if len(violations) != 0 || maxDD != 0 {
		t.Fatalf("empty curve should be neutral: %v %v", violations, maxDD)
	}
}

func TestEvaluateFailedChallenge(t *testing.T) {
	out1 := t0.Add(10 * time.Minute)
	out2 := t0.Add(20 * time.Minute)
	provider := &fakeProvider{
		account: domain.AccountSnapshot{Balance: 9200, Equity: 9200, Currency: "USD"},
		deals: []domain.Deal{
			{Time: t0, Entry: domain.DealEntryIn, PositionID: 1},
			{Time: out1, Entry: domain.DealEntryOut, PositionID: 1, Profit: 800},
			{Time: out1, Entry: domain.DealEntryIn, PositionID: 2},
			{Time: out2, Entry: domain.DealEntryOut, PositionID: 2, Profit: -1600},
		},
		positions: []domain.Position{
			closedPosition(1, "EURUSD", t0, 10*time.Minute),
			closedPosition(2, "EURUSD", out1, 10*time.Minute),
		},
	}
	evaluator := engine.Evaluator{Provider: provider, Log: zerolog.Nop(), Now: func() time.Time { return out2 }}
	result, err := evaluator.Evaluate(context.Background(), testRequest(), "job_test00000001")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if result.Status != domain.ChallengeFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	// Balance dipped to 9200 off a 10800 peak (14.81% > 10) and profit is
	// -8% against an 8% target. Both trades were held 10 minutes.
	if len(result.Violations) != 2 {
		t.Fatalf("violations = %+v", result.Violations)
	}
	rules := map[domain.ViolationKind]bool{}
	for _, v := range result.Violations {
		rules[v.Rule] = true
	}
	if !rules[domain.ViolationMaximumDrawdown] || !rules[domain.ViolationProfitTarget] {
		t.Fatalf("unexpected rule set: %+v", rules)
	}
	if result.Metrics.ProfitPercent != -8 {
		t.Fatalf("profit percent = %v", result.Metrics.ProfitPercent)
	}
	if result.Metrics.MaxDrawdownPercent != 14.81 {
		t.Fatalf("max drawdown = %v", result.Metrics.MaxDrawdownPercent)
	}
	if result.Metrics.TotalTrades != 2 || result.Metrics.TradesUnderFloor != 0 {
		t.Fatalf("metrics = %+v", result.Metrics)
	}
}

func TestEvaluatePassedChallenge(t *testing.T) {
	out := t0.Add(30 * time.Minute)
	provider := &fakeProvider{
		account: domain.AccountSnapshot{Balance: 10900, Equity: 10900, Currency: "USD"},
		deals: []domain.Deal{
			{Time: t0, Entry: domain.DealEntryIn, PositionID: 1},
			{Time: out, Entry: domain.DealEntryOut, PositionID: 1, Profit: 900},
		},
		positions: []domain.Position{closedPosition(1, "EURUSD", t0, 30*time.Minute)},
	}
	evaluator := engine.Evaluator{Provider: provider, Log: zerolog.Nop(), Now: func() time.Time { return out }}
	result, err := evaluator.Evaluate(context.Background(), testRequest(), "job_test00000002")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Status != domain.ChallengePassed {
		t.Fatalf("status = %s, violations = %+v", result.Status, result.Violations)
	}
	if len(result.Violations) != 0 {
		t.Fatalf("passed check must carry an empty violation list, got %+v", result.Violations)
	}
	if !result.Metrics.ProfitTargetMet {
		t.Fatalf("metrics = %+v", result.Metrics)
	}
}

func TestEvaluateLoginFailure(t *testing.T) {
	provider := &fakeProvider{loginErr: errors.New("bad credentials")}
	evaluator := engine.Evaluator{Provider: provider, Log: zerolog.Nop()}
	_, err := evaluator.Evaluate(context.Background(), testRequest(), "job_test00000003")
	if !errors.Is(err, engine.ErrAuthentication) {
		t.Fatalf("err = %v, want ErrAuthentication", err)
	}
}

func TestEvaluateDataUnavailable(t *testing.T) {
	provider := &fakeProvider{dealsErr: errors.New("bridge down")}
	evaluator := engine.Evaluator{Provider: provider, Log: zerolog.Nop()}
	_, err := evaluator.Evaluate(context.Background(), testRequest(), "job_test00000004")
	if !errors.Is(err, engine.ErrDataUnavailable) {
		t.Fatalf("err = %v, want ErrDataUnavailable", err)
	}
}
