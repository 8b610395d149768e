package accrual

import (
	"testing"
	"time"

	"github.com/Dan9191/bank-batch/internal/clock"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/shopspring/decimal"
)

var cal = clock.MustCalendar(clock.DefaultTimezone)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func at(y int, m time.Month, d, h, min, s int) *time.Time {
	t := cal.Date(y, m, d, h, min, s)
	return &t
}

func paidDetail(installment string, paid, limit *time.Time) models.DepositDetail {
	return models.DepositDetail{
		UID:          7,
		ID:           1,
		Installment:  installment,
		DepositDate:  paid,
		Amount:       dec("10000"),
		InterestRate: dec("0.01"),
		DepositLimit: limit,
		Status:       models.DetailPaid,
	}
}

func TestAccrue_BeforeFirstInterestDate(t *testing.T) {
	d := models.Deposit{UID: 7, ID: 1, Begin: *at(2024, 1, 10, 9, 0, 0), Details: []models.DepositDetail{
		paidDetail("2024/01", at(2024, 1, 10, 9, 0, 0), at(2024, 1, 31, 23, 59, 59)),
	}}
	res, err := Accrue(cal, d, *at(2024, 1, 31, 0, 0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Interests) != 0 || res.DepositEnd {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestAccrue_FirstInstallmentProration(t *testing.T) {
	base := *at(2024, 2, 1, 0, 0, 0)
	tests := []struct {
		name  string
		begin *time.Time
		paid  *time.Time
		want  string
	}{
		{"paid at end of the 15th earns full interest", at(2024, 1, 16, 0, 0, 1), at(2024, 1, 15, 23, 59, 59), "100"},
		{"paid after the 15th is prorated 16/31", at(2024, 1, 16, 0, 0, 1), at(2024, 1, 16, 0, 0, 1), "51"},
		{"full month of days yields the full amount", at(2024, 1, 1, 0, 0, 0), at(2024, 1, 16, 0, 0, 1), "100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := models.Deposit{UID: 7, ID: 1, Begin: *tt.begin, Details: []models.DepositDetail{
				paidDetail("2024/01", tt.paid, nil),
			}}
			res, err := Accrue(cal, d, base)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.DepositEnd {
				t.Fatal("first installment must never end a deposit")
			}
			if len(res.Interests) != 1 {
				t.Fatalf("expected 1 interest, got %d", len(res.Interests))
			}
			if got := res.Interests[0].Amount; !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("amount = %s, want %s", got, tt.want)
			}
			if !res.Interests[0].InterestDate.Equal(base) {
				t.Fatalf("interest_date = %v, want %v", res.Interests[0].InterestDate, base)
			}
		})
	}
}

func TestAccrue_FirstInstallmentRatioIsPerDetail(t *testing.T) {
	// The early detail forcing ratio 1 must not leak into the late one.
	d := models.Deposit{UID: 7, ID: 1, Begin: *at(2024, 1, 16, 0, 0, 1), Details: []models.DepositDetail{
		paidDetail("2024/01", at(2024, 1, 10, 0, 0, 0), nil),
		paidDetail("2023/12", at(2024, 1, 20, 0, 0, 0), nil),
	}}
	res, err := Accrue(cal, d, *at(2024, 2, 1, 0, 0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Interests) != 2 {
		t.Fatalf("expected 2 interests, got %d", len(res.Interests))
	}
	if !res.Interests[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("early detail = %s, want 100", res.Interests[0].Amount)
	}
	if !res.Interests[1].Amount.Equal(decimal.NewFromInt(51)) {
		t.Errorf("late detail = %s, want 51", res.Interests[1].Amount)
	}
}

func TestAccrue_FirstInstallmentSkipsIncompleteDetails(t *testing.T) {
	noRate := paidDetail("2024/01", at(2024, 1, 5, 0, 0, 0), nil)
	noRate.InterestRate = decimal.NullDecimal{}
	zeroAmount := paidDetail("2024/02", at(2024, 1, 5, 0, 0, 0), nil)
	zeroAmount.Amount = dec("0")
	unpaid := paidDetail("2024/03", nil, nil)

	d := models.Deposit{UID: 7, ID: 1, Begin: *at(2024, 1, 5, 0, 0, 0), Details: []models.DepositDetail{noRate, zeroAmount, unpaid}}
	res, err := Accrue(cal, d, *at(2024, 2, 1, 0, 0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Interests) != 0 {
		t.Fatalf("expected no interests, got %+v", res.Interests)
	}
}

func threeInstallments() models.Deposit {
	return models.Deposit{UID: 7, ID: 1, Begin: *at(2023, 12, 20, 0, 0, 0), Details: []models.DepositDetail{
		paidDetail("2024/01", at(2024, 1, 3, 0, 0, 0), at(2024, 1, 10, 23, 59, 59)),
		paidDetail("2024/02", at(2024, 2, 3, 0, 0, 0), at(2024, 2, 10, 23, 59, 59)),
		paidDetail("2024/03", at(2024, 3, 3, 0, 0, 0), at(2024, 3, 10, 23, 59, 59)),
	}}
}

func TestAccrue_Maturity(t *testing.T) {
	tests := []struct {
		name      string
		base      *time.Time
		wantRows  int
		wantEnded bool
	}{
		{"middle installment pays every detail", at(2024, 3, 1, 0, 0, 0), 3, false},
		{"cycle after the last installment matures", at(2024, 4, 1, 0, 0, 0), 3, true},
		{"no installment due one cycle later", at(2024, 5, 1, 0, 0, 0), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Accrue(cal, threeInstallments(), *tt.base)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Interests) != tt.wantRows {
				t.Fatalf("rows = %d, want %d", len(res.Interests), tt.wantRows)
			}
			if res.DepositEnd != tt.wantEnded {
				t.Fatalf("DepositEnd = %v, want %v", res.DepositEnd, tt.wantEnded)
			}
			if tt.wantRows > 0 && !res.Total().Equal(decimal.NewFromInt(300)) {
				t.Fatalf("total = %s, want 300", res.Total())
			}
		})
	}
}

func TestAccrue_InstallmentForfeits(t *testing.T) {
	late := threeInstallments()
	late.Details[1].DepositDate = at(2024, 2, 11, 0, 0, 0)

	noLimit := threeInstallments()
	noLimit.Details[1].DepositLimit = nil

	unpaid := threeInstallments()
	unpaid.Details[1].DepositDate = nil

	tests := []struct {
		name string
		d    models.Deposit
	}{
		{"late payment", late},
		{"missing deadline", noLimit},
		{"unpaid target", unpaid},
		{"no details", models.Deposit{UID: 7, ID: 1, Begin: *at(2023, 12, 20, 0, 0, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Accrue(cal, tt.d, *at(2024, 3, 1, 0, 0, 0))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Interests) != 0 || res.DepositEnd {
				t.Fatalf("expected forfeited cycle, got %+v", res)
			}
		})
	}
}

func TestAccrue_TruncatesTowardZero(t *testing.T) {
	d := threeInstallments()
	for i := range d.Details {
		d.Details[i].Amount = dec("333")
		d.Details[i].InterestRate = dec("0.015")
	}
	res, err := Accrue(cal, d, *at(2024, 3, 1, 0, 0, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, i := range res.Interests {
		if !i.Amount.Equal(decimal.NewFromInt(4)) {
			t.Fatalf("amount = %s, want 4", i.Amount)
		}
	}
}

func TestAccrue_BadInstallmentLabel(t *testing.T) {
	d := threeInstallments()
	d.Details[0].Installment = "2024-01"
	if _, err := Accrue(cal, d, *at(2024, 3, 1, 0, 0, 0)); err == nil {
		t.Fatal("expected error for malformed installment label")
	}
}
