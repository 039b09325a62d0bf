package terminal

import (
	"testing"
	"time"

	"propcheck/internal/domain"
)

func TestPositionsFromDeals(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	deals := []domain.Deal{
		// Complete round trip.
		{Time: t0, Symbol: "EURUSD", Entry: domain.DealEntryIn, Direction: domain.DirectionBuy,
			Volume: 1, Price: 1.1000, PositionID: 100, Commission: -3},
		{Time: t0.Add(10 * time.Minute), Symbol: "EURUSD", Entry: domain.DealEntryOut,
			Price: 1.1050, PositionID: 100, Profit: 500, Swap: -1},
		// Still open: only the IN leg observed.
		{Time: t0.Add(5 * time.Minute), Symbol: "XAUUSD", Entry: domain.DealEntryIn,
			Direction: domain.DirectionSell, Volume: 0.5, Price: 2100, PositionID: 200},
		// Balance operation without a position id is ignored.
		{Time: t0, Entry: domain.DealEntryIn, PositionID: 0, Profit: 10000},
	}

	positions := PositionsFromDeals(deals)
	if len(positions) != 1 {
		t.Fatalf("only fully closed positions are returned, got %d", len(positions))
	}
	p := positions[0]
	if p.Ticket != 100 || p.Symbol != "EURUSD" {
		t.Fatalf("position identity wrong: %+v", p)
	}
	if p.OpenPrice != 1.1000 || p.ClosePrice != 1.1050 {
		t.Fatalf("leg prices wrong: %+v", p)
	}
	if p.Profit != 500 || p.Swap != -1 || p.Commission != -3 {
		t.Fatalf("costs must accumulate across legs: %+v", p)
	}
	if p.Duration() != 10*time.Minute {
		t.Fatalf("duration = %v", p.Duration())
	}
}

func TestPositionsFromDealsOrderedByOpenTime(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	deals := []domain.Deal{
		{Time: t0.Add(time.Hour), Symbol: "EURUSD", Entry: domain.DealEntryIn, PositionID: 2},
		{Time: t0.Add(2 * time.Hour), Symbol: "EURUSD", Entry: domain.DealEntryOut, PositionID: 2},
		{Time: t0, Symbol: "EURUSD", Entry: domain.DealEntryIn, PositionID: 1},
		{Time: t0.Add(30 * time.Minute), Symbol: "EURUSD", Entry: domain.DealEntryOut, PositionID: 1},
	}
	positions := PositionsFromDeals(deals)
	if len(positions) != 2 {
		t.Fatalf("got %d positions", len(positions))
	}
	if positions[0].Ticket != 1 || positions[1].Ticket != 2 {
		t.Fatalf("positions not ordered by open time: %+v", positions)
	}
}
