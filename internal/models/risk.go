package models

import "github.com/shopspring/decimal"

// RiskDetail is one structured finding reported by the risk vendor.
type RiskDetail struct {
	Label    string          `json:"label"`
	Type     string          `json:"type"`
	Volume   decimal.Decimal `json:"volume"`
	Address  string          `json:"address"`
	Percent  float64         `json:"percent"`
	RiskType string          `json:"risk_type"`
}

// RiskAssessment is a parsed vendor response for an address or transaction
type RiskAssessment struct {
	Subject      string       `json:"subject"`
	Score        int          `json:"score"`
	RiskLevel    string       `json:"risk_level"`
	HackingEvent string       `json:"hacking_event"`
	DetailList   []string     `json:"detail_list"`
	RiskDetail   []RiskDetail `json:"risk_detail"`
	ScannedTS    int64        `json:"scanned_ts"`
}
