package models

import "github.com/shopspring/decimal"

// Forced risk overrides set by operators on users.hw_risk_level.
const (
	OverrideNone          = "none"
	OverrideForceLow      = "force_low"
	OverrideForceModerate = "force_moderate"
	OverrideForceHigh     = "force_high"
)

// User represents a platform member and their balances
type User struct {
	ID            int64               `json:"id"`
	Name          string              `json:"name"`
	LoginID       string              `json:"login_id"`
	Email         string              `json:"email"`
	Point         decimal.Decimal     `json:"point"`
	Balance       decimal.Decimal     `json:"balance"`
	Loan          decimal.Decimal     `json:"loan"`
	DemandBalance decimal.Decimal     `json:"demand_balance"`
	Parent        *int64              `json:"parent"`
	ParentDivid   decimal.NullDecimal `json:"parent_divid"`
	Wallet        *string             `json:"wallet"`
	AuditedUSDT   decimal.Decimal     `json:"audited_usdt"`
	AuditedTRX    decimal.Decimal     `json:"audited_trx"`
	RiskScore     int                 `json:"risk_score"`
	RiskLevel     string              `json:"risk_level"`
	HWRiskLevel   string              `json:"hw_risk_level"`

	// Children is rebuilt from Parent links on every run and never stored.
	Children []*User `json:"-"`
}

// HasWallet reports whether the user registered an on-chain address.
func (u *User) HasWallet() bool {
	return u.Wallet != nil && *u.Wallet != ""
}

// Directory indexes users by id with the referral children adjacency.
type Directory map[int64]*User

// NewDirectory indexes users and links every user to its parent's Children.
func NewDirectory(users []*User) Directory {
	dir := make(Directory, len(users))
	for _, u := range users {
		u.Children = nil
		dir[u.ID] = u
	}
	for _, u := range users {
		if u.Parent == nil {
			continue
		}
		if p, ok := dir[*u.Parent]; ok && p != u {
			p.Children = append(p.Children, u)
		}
	}
	return dir
}

// Lookup returns the user with the given id.
func (d Directory) Lookup(id int64) (*User, bool) {
	u, ok := d[id]
	return u, ok
}

// Roots returns users without a known parent.
func (d Directory) Roots() []*User {
	var roots []*User
	for _, u := range d {
		if u.Parent == nil {
			roots = append(roots, u)
			continue
		}
		if _, ok := d[*u.Parent]; !ok {
			roots = append(roots, u)
		}
	}
	return roots
}
