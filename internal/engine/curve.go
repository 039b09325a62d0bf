package engine

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"propcheck/internal/domain"
)

// CurveBuilder reconstructs the account equity curve from the deal stream,
// filling in intraday floating valuation for closed positions from one-minute
// bars. Positions still open at evaluation time contribute no floating P&L.
type CurveBuilder struct {
	Provider domain.SessionProvider
	Log      zerolog.Logger
	Now      func() time.Time
}

// Build returns the equity curve, ordered by time with unique timestamps.
// When several points share a timestamp, the last one written wins.
func (b CurveBuilder) Build(ctx context.Context, initialBalance float64, deals []domain.Deal, positions []domain.Position) []domain.EquityPoint {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	sorted := make([]domain.Deal, len(deals))
	copy(sorted, deals)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	start := now()
	if len(sorted) > 0 {
		start = sorted[0].Time
	}

	// Realized balance curve: flat between closes, stepped on each OUT deal.
	realized := []domain.EquityPoint{{Time: start, Equity: initialBalance}}
	balance := initialBalance
	for _, d := range sorted {
		if d.Entry != domain.DealEntryOut {
			continue
		}
		balance += d.Profit + d.Swap + d.Commission
		realized = append(realized, domain.EquityPoint{Time: d.Time, Equity: balance})
	}

	points := make([]domain.EquityPoint, len(realized))
	copy(points, realized)

	for _, pos := range positions {
		if !pos.Closed() {
			continue
		}
		bars, err := b.Provider.MinuteBars(ctx, pos.Symbol, pos.OpenTime, pos.CloseTime)
		if err != nil {
			b.Log.Warn().Err(err).Str("symbol", pos.Symbol).Int64("ticket", pos.Ticket).
				Msg("no bars for position, skipping floating valuation")
			continue
		}
		if len(bars) == 0 {
			continue
		}
		info, err := b.Provider.InstrumentInfo(ctx, pos.Symbol)
		if err != nil {
			b.Log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("no instrument info, skipping floating valuation")
			continue
		}
		for _, bar := range bars {
			points = append(points, domain.EquityPoint{
				Time:   bar.Time,
				Equity: balanceAt(realized, bar.Time) + floatingPnL(pos, info.ContractSize, bar.Close),
			})
		}
	}

	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return dedupeKeepLast(points)
}

// balanceAt returns the realized balance in effect at or before t.
func balanceAt(realized []domain.EquityPoint, t time.Time) float64 {
	balance := realized[0].Equity
	for _, p := range realized {
		if p.Time.After(t) {
			break
		}
		balance = p.Equity
	}
	return balance
}

func floatingPnL(pos domain.Position, contractSize, barClose float64) float64 {
	diff := barClose - pos.OpenPrice
	if pos.Direction == domain.DirectionSell {
		diff = pos.OpenPrice - barClose
	}
	return pos.Volume * contractSize * diff
}

func dedupeKeepLast(points []domain.EquityPoint) []domain.EquityPoint {
	if len(points) == 0 {
		return points
	}
	unique := points[:0]
	for _, p := range points {
		if len(unique) > 0 && unique[len(unique)-1].Time.Equal(p.Time) {
			unique[len(unique)-1].Equity = p.Equity
			continue
		}
		unique = append(unique, p)
	}
	return unique
}
