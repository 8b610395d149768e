package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dan9191/bank-batch/internal/app"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/Dan9191/bank-batch/internal/risk"
)

const usage = `usage: inspect [-m env] <command> <arg>

commands:
  wallet <address>   on-chain TRX and token balances
  risk <address>     wallet risk assessment and the derived level
  tx <hash>          transaction risk assessment and the derived level
`

func main() {
	opts, args, err := app.ParseFlags("inspect", os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if len(args) != 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	a, err := app.BuildClients(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var out any
	switch cmd, arg := args[0], args[1]; cmd {
	case "wallet":
		out, err = a.Wallets.AuditWallet(ctx, arg)
	case "risk":
		out, err = assessment(a.Risks.AssessWallet(ctx, risk.TierLow, arg))
	case "tx":
		out, err = assessment(a.Risks.AssessTransaction(ctx, risk.TierLow, arg))
	default:
		fmt.Fprint(os.Stderr, usage)
		a.Close()
		os.Exit(2)
	}
	if err != nil {
		a.Log.Errorf("%s failed: %v", args[0], err)
		a.Close()
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		a.Close()
		os.Exit(1)
	}
}

type report struct {
	Assessment models.RiskAssessment `json:"assessment"`
	Level      risk.Level            `json:"level"`
	Score      risk.Score            `json:"score"`
}

func assessment(a models.RiskAssessment, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	level, score := risk.Analyse(a)
	return report{Assessment: a, Level: level, Score: score}, nil
}
