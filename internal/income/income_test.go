package income

import (
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/Dan9191/bank-batch/internal/ledger"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func id(v int64) *int64 { return &v }

func divid(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// 1 borrows; 2 and 3 guarantee; 1 -> 4 (10%) -> 5 (terminal) -> 6.
func hierarchy() models.Directory {
	return models.NewDirectory([]*models.User{
		{ID: 1, Parent: id(4)},
		{ID: 2},
		{ID: 3},
		{ID: 4, Parent: id(5), ParentDivid: divid("0.1")},
		{ID: 5, Parent: id(6)},
		{ID: 6, ParentDivid: divid("0.5")},
	})
}

func TestSplit_GuarantorsThenHierarchy(t *testing.T) {
	payments, err := Split(d("1000"), d("0.05"), [3]*int64{id(2), id(3), nil}, 1, hierarchy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Payment{
		{UserID: 2, Amount: d("50"), IsGuarantee: true},
		{UserID: 3, Amount: d("50"), IsGuarantee: true},
		{UserID: 4, Amount: d("90")},
		{UserID: 5, Amount: d("810")},
	}
	if len(payments) != len(want) {
		t.Fatalf("got %d payments, want %d: %+v", len(payments), len(want), payments)
	}
	for i := range want {
		if payments[i].UserID != want[i].UserID || !payments[i].Amount.Equal(want[i].Amount) || payments[i].IsGuarantee != want[i].IsGuarantee {
			t.Errorf("payment %d = %+v, want %+v", i, payments[i], want[i])
		}
	}
}

func TestSplit_UnknownGuarantorIgnored(t *testing.T) {
	payments, err := Split(d("100"), d("0.1"), [3]*int64{id(99), nil, nil}, 1, hierarchy())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range payments {
		if p.IsGuarantee {
			t.Fatalf("unexpected guarantor payment %+v", p)
		}
	}
}

func TestSplit_ChainRunsOut(t *testing.T) {
	users := models.NewDirectory([]*models.User{
		{ID: 1, Parent: id(2)},
		{ID: 2, ParentDivid: divid("0.2")},
	})
	payments, err := Split(d("1000"), decimal.Zero, [3]*int64{}, 1, users)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 1 || !payments[0].Amount.Equal(d("200")) {
		t.Fatalf("expected single 200 payment, got %+v", payments)
	}
}

func TestSplit_ZeroDividPassesThrough(t *testing.T) {
	users := models.NewDirectory([]*models.User{
		{ID: 1, Parent: id(2)},
		{ID: 2, Parent: id(3), ParentDivid: divid("0")},
		{ID: 3},
	})
	payments, err := Split(d("7"), decimal.Zero, [3]*int64{}, 1, users)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(payments) != 1 || payments[0].UserID != 3 || !payments[0].Amount.Equal(d("7")) {
		t.Fatalf("expected terminal ancestor to take 7, got %+v", payments)
	}
}

func TestSplit_Cycle(t *testing.T) {
	users := models.NewDirectory([]*models.User{
		{ID: 1, Parent: id(2)},
		{ID: 2, Parent: id(3), ParentDivid: divid("0.1")},
		{ID: 3, Parent: id(2), ParentDivid: divid("0.1")},
	})
	_, err := Split(d("1000"), decimal.Zero, [3]*int64{}, 1, users)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestSplit_OverAllocated(t *testing.T) {
	_, err := Split(d("100"), d("0.5"), [3]*int64{id(2), id(3), nil}, 1, hierarchy())
	if !errors.Is(err, ErrOverAllocated) {
		t.Fatalf("expected ErrOverAllocated, got %v", err)
	}
}

func TestSplit_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 0; n < 500; n++ {
		depth := rng.Intn(6) + 1
		users := []*models.User{{ID: 1, Parent: id(2)}, {ID: 100}, {ID: 101}}
		for i := int64(2); i < int64(depth)+2; i++ {
			u := &models.User{ID: i}
			if i < int64(depth)+1 {
				u.Parent = id(i + 1)
			}
			if rng.Intn(4) != 0 {
				u.ParentDivid = decimal.NewNullDecimal(decimal.New(int64(rng.Intn(101)), -2))
			}
			users = append(users, u)
		}
		amount := decimal.NewFromInt(int64(rng.Intn(100000)))
		gDivid := decimal.New(int64(rng.Intn(34)), -2)

		payments, err := Split(amount, gDivid, [3]*int64{id(100), id(101), nil}, 1, models.NewDirectory(users))
		if err != nil {
			t.Fatalf("scenario %d: unexpected error: %v", n, err)
		}

		total := decimal.Zero
		for _, p := range payments {
			if p.IsGuarantee {
				total = total.Add(p.Amount)
			}
		}
		remaining := amount.Sub(total)
		for _, p := range payments {
			if p.IsGuarantee {
				continue
			}
			if p.Amount.GreaterThan(remaining) {
				t.Fatalf("scenario %d: payment %s exceeds remaining %s", n, p.Amount, remaining)
			}
			remaining = remaining.Sub(p.Amount)
			total = total.Add(p.Amount)
		}
		if total.GreaterThan(amount) {
			t.Fatalf("scenario %d: paid %s out of %s", n, total, amount)
		}
	}
}

func TestDistribute_MarksRecordsAndKeepsLedger(t *testing.T) {
	users := hierarchy()
	users[4].Point = d("10")
	book := ledger.NewBook(users)
	dist := NewDistributor(d("0.05"), users, book, testLogger())

	out := dist.Distribute([]models.BorrowingInterest{
		{UID: 1, ID: 1, Amount: d("1000"), Status: models.InterestRepaid, Guarantors: [3]*int64{id(2), nil, nil}},
		{UID: 1, ID: 2, Amount: d("500"), Status: models.InterestRepaid},
		{UID: 1, ID: 3, Amount: d("500"), Status: models.InterestNotYetDue},
		{UID: 1, ID: 4, Amount: d("0"), Status: models.InterestRepaid},
	})

	if len(out.Distributed) != 2 {
		t.Fatalf("expected 2 distributed records, got %d", len(out.Distributed))
	}
	for _, rec := range out.Distributed {
		if rec.Status != models.InterestDistributed {
			t.Fatalf("record %d status = %s", rec.ID, rec.Status)
		}
	}
	if len(out.Incomes) != len(out.Flows) {
		t.Fatalf("incomes (%d) and flows (%d) must pair up", len(out.Incomes), len(out.Flows))
	}
	for _, f := range out.Flows {
		if f.CounterSide == nil || *f.CounterSide != 1 {
			t.Fatalf("flow %+v must reference the borrower", f)
		}
	}
	if err := ledger.Replay(d("10"), ledger.ForUser(out.Flows, 4, models.FundPoint)); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !out.Incomes[0].IsGuarantee || out.Flows[0].Action != models.ActionGuaranteeInterest {
		t.Fatalf("first payment must be the guarantee cut, got %+v", out.Flows[0])
	}
}

func TestDistribute_CycleLeavesRecordRepaid(t *testing.T) {
	users := models.NewDirectory([]*models.User{
		{ID: 1, Parent: id(2)},
		{ID: 2, Parent: id(1), ParentDivid: divid("0.1")},
	})
	dist := NewDistributor(decimal.Zero, users, ledger.NewBook(users), testLogger())
	out := dist.Distribute([]models.BorrowingInterest{{UID: 1, ID: 1, Amount: d("100"), Status: models.InterestRepaid}})
	if len(out.Distributed) != 0 || len(out.Flows) != 0 {
		t.Fatalf("expected record to be skipped, got %+v", out)
	}
}
