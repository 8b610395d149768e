package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dan9191/bank-batch/internal/apperr"
	"github.com/Dan9191/bank-batch/internal/ledger"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func paid(uid, id int64, installment string, paidAt, limit *time.Time) models.DepositDetail {
	return models.DepositDetail{
		UID:          uid,
		ID:           id,
		Installment:  installment,
		DepositDate:  paidAt,
		Amount:       nullDec("10000"),
		InterestRate: nullDec("0.01"),
		DepositLimit: limit,
		Status:       models.DetailPaid,
	}
}

// dailyStore seeds a store with one maturing deposit, a repaid borrowing
// interest, an expired demand and a few NDY installments.
func dailyStore() *fakeStore {
	s := newStore(
		&models.User{ID: 1, Point: dec("1000")},
		&models.User{ID: 2, Parent: ptr[int64](1), DemandBalance: dec("300")},
		&models.User{ID: 3, Parent: ptr[int64](2)},
		&models.User{ID: 7, Point: dec("500")},
		&models.User{ID: 8},
	)
	s.state.divid = dec("0.1")
	s.state.deposits = []models.Deposit{{
		UID: 7, ID: 1, Begin: at(2024, 1, 10, 9, 0, 0), Status: models.DepositBegin,
		Details: []models.DepositDetail{
			paid(7, 1, "2024/01", ptr(at(2024, 1, 10, 9, 0, 0)), ptr(at(2024, 1, 31, 23, 59, 59))),
			paid(7, 1, "2024/02", ptr(at(2024, 2, 5, 12, 0, 0)), ptr(at(2024, 2, 29, 23, 59, 59))),
		},
	}}
	s.state.details = []models.DepositDetail{
		{UID: 8, ID: 2, Installment: "2024/02", DepositLimit: ptr(at(2024, 2, 29, 23, 59, 59)), Status: models.DetailNotYetDue},
		{UID: 8, ID: 2, Installment: "2024/03", DepositLimit: ptr(at(2024, 3, 31, 23, 59, 59)), Status: models.DetailNotYetDue},
		{UID: 8, ID: 3, Installment: "2024/02", Status: models.DetailNotYetDue},
	}
	s.state.borrowing = []models.BorrowingInterest{
		{UID: 3, ID: 5, InterestFrom: at(2024, 1, 1, 0, 0, 0), InterestTo: at(2024, 1, 31, 23, 59, 59), Amount: dec("1000"),
			Status: models.InterestRepaid, Guarantors: [3]*int64{ptr[int64](1)}},
		{UID: 3, ID: 5, InterestFrom: at(2024, 2, 1, 0, 0, 0), InterestTo: at(2024, 2, 29, 23, 59, 59), Amount: dec("1000"),
			Status: models.InterestNotYetDue},
	}
	s.state.demands = []models.Demand{{
		UID: 2, ID: 9, Begin: at(2024, 2, 1, 0, 0, 0), End: ptr(at(2024, 2, 29, 23, 59, 59)),
		Amount: nullDec("300"), Interest: nullDec("3"), Status: models.DemandBegin,
	}}
	return s
}

func TestRunDaily_FirstOfMonth(t *testing.T) {
	store := dailyStore()
	start := map[int64]decimal.Decimal{}
	for id, u := range store.state.users {
		start[id] = u.Point
	}
	f := newFixture(t, store, testConfig())

	report, err := f.svc.RunDaily(context.Background(), at(2024, 3, 1, 0, 0, 0))
	if err != nil {
		t.Fatalf("RunDaily returned error: %v", err)
	}

	want := DailyReport{
		BaseDate:         at(2024, 3, 1, 0, 0, 0),
		Monthly:          true,
		DepositInterests: 2,
		DepositsEnded:    1,
		DetailsOverdue:   1,
		InterestsOverdue: 1,
		Distributed:      1,
		Incomes:          2,
		DemandsSettled:   1,
		FundFlows:        5,
		BalancesTouched:  3,
	}
	if !report.BaseDate.Equal(want.BaseDate) {
		t.Fatalf("BaseDate = %v, want %v", report.BaseDate, want.BaseDate)
	}
	report.BaseDate = want.BaseDate
	if report != want {
		t.Fatalf("report = %+v, want %+v", report, want)
	}

	points := map[int64]string{1: "1100", 2: "1203", 3: "0", 7: "700", 8: "0"}
	for id, p := range points {
		if got := store.user(id).Point; !got.Equal(dec(p)) {
			t.Errorf("user %d point = %s, want %s", id, got, p)
		}
	}
	if got := store.user(2).DemandBalance; !got.IsZero() {
		t.Errorf("demand balance = %s, want 0", got)
	}

	st := store.state
	if st.deposits[0].Status != models.DepositEnd || st.deposits[0].End == nil {
		t.Errorf("deposit not ended: %+v", st.deposits[0])
	}
	if st.details[0].Status != models.DetailOverdue || st.details[1].Status != models.DetailNotYetDue {
		t.Errorf("unexpected detail statuses: %s, %s", st.details[0].Status, st.details[1].Status)
	}
	if st.borrowing[0].Status != models.InterestDistributed || st.borrowing[1].Status != models.InterestOverdue {
		t.Errorf("unexpected interest statuses: %s, %s", st.borrowing[0].Status, st.borrowing[1].Status)
	}
	if st.demands[0].Status != models.DemandDone {
		t.Errorf("demand status = %s, want done", st.demands[0].Status)
	}

	actions := []string{
		models.ActionDepositInterest,
		models.ActionGuaranteeInterest,
		models.ActionDistributeInterest,
		models.ActionDemandInterest,
		models.ActionDemandDepositEnd,
	}
	for i, a := range actions {
		if st.flows[i].Action != a {
			t.Errorf("flow %d action = %s, want %s", i, st.flows[i].Action, a)
		}
	}
	for id, p := range start {
		if err := ledger.Replay(p, ledger.ForUser(st.flows, id, models.FundPoint)); err != nil {
			t.Errorf("replay user %d: %v", id, err)
		}
	}
	if got := store.processes[0]; got != "test.daily" {
		t.Errorf("process = %q, want test.daily", got)
	}
}

func TestRunDaily_MonthlyAccrualIsIdempotent(t *testing.T) {
	store := newStore(&models.User{ID: 7, Point: dec("500")})
	store.state.deposits = []models.Deposit{{
		UID: 7, ID: 1, Begin: at(2024, 1, 10, 9, 0, 0), Status: models.DepositBegin,
		Details: []models.DepositDetail{
			paid(7, 1, "2024/01", ptr(at(2024, 1, 10, 9, 0, 0)), ptr(at(2024, 1, 31, 23, 59, 59))),
		},
	}}
	f := newFixture(t, store, testConfig())
	base := at(2024, 2, 1, 0, 0, 0)

	first, err := f.svc.RunDaily(context.Background(), base)
	if err != nil {
		t.Fatalf("first run returned error: %v", err)
	}
	second, err := f.svc.RunDaily(context.Background(), base)
	if err != nil {
		t.Fatalf("second run returned error: %v", err)
	}

	if first.DepositInterests != 1 || second.DepositInterests != 0 || second.DepositsSkipped != 1 {
		t.Fatalf("unexpected reports: first=%+v second=%+v", first, second)
	}
	if got := store.user(7).Point; !got.Equal(dec("600")) {
		t.Fatalf("point = %s, want 600", got)
	}
	if len(store.state.interests) != 1 || len(store.state.flows) != 1 {
		t.Fatalf("expected one interest and one flow, got %d and %d", len(store.state.interests), len(store.state.flows))
	}
}

func TestRunDaily_NotFirstOfMonthSkipsAccrual(t *testing.T) {
	store := dailyStore()
	f := newFixture(t, store, testConfig())

	report, err := f.svc.RunDaily(context.Background(), at(2024, 3, 2, 15, 0, 0))
	if err != nil {
		t.Fatalf("RunDaily returned error: %v", err)
	}
	if report.Monthly || report.DepositInterests != 0 {
		t.Fatalf("expected no accrual, got %+v", report)
	}
	if !report.BaseDate.Equal(at(2024, 3, 2, 0, 0, 0)) {
		t.Fatalf("base date not truncated to midnight: %v", report.BaseDate)
	}
	if got := store.user(7).Point; !got.Equal(dec("500")) {
		t.Fatalf("point = %s, want 500", got)
	}
	if report.DemandsSettled != 1 {
		t.Fatalf("demands settled = %d, want 1", report.DemandsSettled)
	}
}

func TestRunDaily_FailureRollsBackEverything(t *testing.T) {
	store := dailyStore()
	store.failOn["InsertFundFlows"] = errBoom
	f := newFixture(t, store, testConfig())

	_, err := f.svc.RunDaily(context.Background(), at(2024, 3, 1, 0, 0, 0))
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if op := apperr.Op(err); op != "daily.persist" {
		t.Fatalf("op = %q, want daily.persist", op)
	}
	if store.commits != 0 || store.rollbacks != 1 {
		t.Fatalf("commits=%d rollbacks=%d", store.commits, store.rollbacks)
	}
	st := store.state
	if len(st.interests) != 0 || len(st.incomes) != 0 || st.deposits[0].Status != models.DepositBegin {
		t.Fatal("state changed despite rollback")
	}
	if got := store.user(7).Point; !got.Equal(dec("500")) {
		t.Fatalf("point = %s, want 500", got)
	}

	var logged bool
	for _, e := range f.logs.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["op"] == "daily.persist" && e.Data["job"] == "daily" {
			logged = true
		}
	}
	if !logged {
		t.Fatal("expected the failure to be logged with its op")
	}
}

func TestRunDaily_CancelledContext(t *testing.T) {
	store := dailyStore()
	f := newFixture(t, store, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.svc.RunDaily(ctx, at(2024, 3, 1, 0, 0, 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if store.commits != 0 {
		t.Fatal("cancelled run must not commit")
	}
}
