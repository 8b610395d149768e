package risk

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Dan9191/bank-batch/internal/models"
)

// Summary renders an assessment for an operator notification.
func Summary(a models.RiskAssessment) string {
	hacking := a.HackingEvent
	if hacking == "" {
		hacking = "none"
	}
	details := "none"
	if len(a.DetailList) > 0 {
		details = strings.Join(a.DetailList, ", ")
	}
	riskDetail := "none"
	if len(a.RiskDetail) > 0 {
		if b, err := json.Marshal(a.RiskDetail); err == nil {
			riskDetail = string(b)
		}
	}
	return strings.Join([]string{
		fmt.Sprintf("score: %d", a.Score),
		fmt.Sprintf("risk level: %s", a.RiskLevel),
		fmt.Sprintf("hacking event: %s", hacking),
		fmt.Sprintf("detail list: %s", details),
		fmt.Sprintf("risk detail: %s", riskDetail),
	}, "\n")
}

// WalletNotification describes a risky personal wallet.
func WalletNotification(u *models.User, a models.RiskAssessment) string {
	return fmt.Sprintf("%s (%s) personal wallet is at risk.\n\n%s", u.Name, u.LoginID, Summary(a))
}

// DepositNotification describes a risky source wallet of a deposit.
func DepositNotification(u *models.User, rec models.DepositRecord, a models.RiskAssessment) string {
	return fmt.Sprintf("%s (%s) deposited from a risky wallet.\n\nwallet: %s\ntx: %s\n%s",
		u.Name, u.LoginID, rec.FromAddress, rec.TxHash, Summary(a))
}
