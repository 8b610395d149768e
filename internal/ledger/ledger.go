package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/shopspring/decimal"
)

// ErrUnknownUser is returned when crediting a user the book was not seeded with.
var ErrUnknownUser = errors.New("unknown user")

type account struct {
	userID   int64
	fundType string
}

// Delta is the net change of one user's fund over a run.
type Delta struct {
	UserID   int64
	FundType string
	Amount   decimal.Decimal
}

// Book tracks running balances for a batch run and emits fund flows in
// mutation order.
type Book struct {
	balances map[account]decimal.Decimal
	deltas   map[account]decimal.Decimal
	flows    []models.FundFlow
}

// NewBook seeds the POINT balance of every user in dir.
func NewBook(dir models.Directory) *Book {
	b := &Book{
		balances: make(map[account]decimal.Decimal, len(dir)),
		deltas:   make(map[account]decimal.Decimal),
	}
	for id, u := range dir {
		b.balances[account{id, models.FundPoint}] = u.Point
	}
	return b
}

// Balance returns the running balance of a user's fund.
func (b *Book) Balance(userID int64, fundType string) (decimal.Decimal, bool) {
	bal, ok := b.balances[account{userID, fundType}]
	return bal, ok
}

// Credit applies a signed amount and returns the flow row describing it.
func (b *Book) Credit(userID int64, fundType, action string, amount decimal.Decimal, counterSide *int64, remark string) (models.FundFlow, error) {
	key := account{userID, fundType}
	current, ok := b.balances[key]
	if !ok {
		if _, known := b.balances[account{userID, models.FundPoint}]; !known {
			return models.FundFlow{}, fmt.Errorf("credit %s to user %d: %w", action, userID, ErrUnknownUser)
		}
		current = decimal.Zero
	}
	after := current.Add(amount)
	b.balances[key] = after
	b.deltas[key] = b.deltas[key].Add(amount)

	flow := models.FundFlow{
		UserID:       userID,
		FundType:     fundType,
		Action:       action,
		Amount:       amount,
		BalanceAfter: after,
		CounterSide:  counterSide,
		Remark:       remark,
	}
	b.flows = append(b.flows, flow)
	return flow, nil
}

// Flows returns every flow in the order it was applied.
func (b *Book) Flows() []models.FundFlow {
	out := make([]models.FundFlow, len(b.flows))
	copy(out, b.flows)
	return out
}

// Deltas returns the non-zero net change per user and fund, ordered by user id.
func (b *Book) Deltas() []Delta {
	out := make([]Delta, 0, len(b.deltas))
	for key, amount := range b.deltas {
		if amount.IsZero() {
			continue
		}
		out = append(out, Delta{UserID: key.userID, FundType: key.fundType, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].FundType < out[j].FundType
	})
	return out
}

// Replay checks that flows for a single user and fund chain from start.
func Replay(start decimal.Decimal, flows []models.FundFlow) error {
	running := start
	for i, f := range flows {
		running = running.Add(f.Amount)
		if !running.Equal(f.BalanceAfter) {
			return fmt.Errorf("flow %d (%s) for user %d: balance_after %s, replayed %s",
				i, f.Action, f.UserID, f.BalanceAfter, running)
		}
	}
	return nil
}

// ForUser filters flows down to one user and fund, keeping order.
func ForUser(flows []models.FundFlow, userID int64, fundType string) []models.FundFlow {
	var out []models.FundFlow
	for _, f := range flows {
		if f.UserID == userID && f.FundType == fundType {
			out = append(out, f)
		}
	}
	return out
}
