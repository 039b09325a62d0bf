package terminal

import (
	"sort"

	"propcheck/internal/domain"
)

// PositionsFromDeals groups deals by position id and folds each group into a
// position: the IN deal supplies the open leg, the OUT deal the close leg,
// and profit/swap/commission accumulate across every leg. Only positions
// with both legs observed are returned.
func PositionsFromDeals(deals []domain.Deal) []domain.Position {
	byID := make(map[int64]*domain.Position)
	var order []int64

	for _, d := range deals {
		if d.PositionID == 0 {
			continue
		}
		pos, ok := byID[d.PositionID]
		if !ok {
			pos = &domain.Position{
				Ticket:    d.PositionID,
				Symbol:    d.Symbol,
				Direction: d.Direction,
			}
			byID[d.PositionID] = pos
			order = append(order, d.PositionID)
		}
		switch d.Entry {
		case domain.DealEntryIn:
			pos.OpenTime = d.Time
			pos.OpenPrice = d.Price
			pos.Volume = d.Volume
			pos.Direction = d.Direction
		case domain.DealEntryOut:
			pos.CloseTime = d.Time
			pos.ClosePrice = d.Price
		}
		pos.Profit += d.Profit
		pos.Swap += d.Swap
		pos.Commission += d.Commission
	}

	closed := make([]domain.Position, 0, len(order))
	for _, id := range order {
		if pos := byID[id]; pos.Closed() {
			closed = append(closed, *pos)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool { return closed[i].OpenTime.Before(closed[j].OpenTime) })
	return closed
}
