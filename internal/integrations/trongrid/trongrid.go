package trongrid

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/Dan9191/bank-batch/internal/config"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/Dan9191/bank-batch/internal/ratelimit"
	"github.com/Dan9191/bank-batch/internal/retry"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"
)

const limiterKey = "trongrid"

// Client reads TRX and TRC20 balances from TronGrid
type Client struct {
	url          string
	apiKey       string
	usdtContract string
	client       *http.Client
	retry        retry.Policy
	limiter      ratelimit.Limiter
	log          logrus.FieldLogger
}

// NewClient initializes a new TronGrid client
func NewClient(cfg *config.Config, policy retry.Policy, limiter ratelimit.Limiter, log logrus.FieldLogger) *Client {
	return &Client{
		url:          strings.TrimSuffix(cfg.TronGridURL, "/"),
		apiKey:       cfg.TronGridAPIKey,
		usdtContract: cfg.USDTContract,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry:   policy,
		limiter: limiter,
		log:     log,
	}
}

type accountResponse struct {
	Data []struct {
		Balance decimal.Decimal              `json:"balance"`
		TRC20   []map[string]decimal.Decimal `json:"trc20"`
	} `json:"data"`
}

type constantCallResponse struct {
	ConstantResult []string `json:"constant_result"`
	Result         struct {
		Result  bool   `json:"result"`
		Message string `json:"message"`
	} `json:"result"`
}

// AuditWallet returns the TRX and USDT balances of address in smallest units.
// When the account listing carries no USDT holding, the balance is read from
// the token contract directly; a failed fallback leaves USDT at zero.
func (c *Client) AuditWallet(ctx context.Context, address string) (models.WalletBalance, error) {
	balance := models.WalletBalance{Address: address, TRX: decimal.Zero, USDT: decimal.Zero}

	var account accountResponse
	err := c.retry.Do(ctx, "trongrid.account", func(ctx context.Context) error {
		return c.call(ctx, http.MethodGet, "/v1/accounts/"+address, nil, &account)
	})
	if err != nil {
		return balance, fmt.Errorf("failed to query account %s: %w", address, err)
	}

	if len(account.Data) > 0 {
		data := account.Data[0]
		balance.TRX = data.Balance
		for _, token := range data.TRC20 {
			for contract, amount := range token {
				if amount.IsZero() {
					continue
				}
				if contract == c.usdtContract {
					balance.USDT = amount
				}
				balance.Tokens = append(balance.Tokens, models.TokenBalance{Contract: contract, Balance: amount})
			}
		}
	}

	if balance.USDT.IsZero() {
		usdt, err := c.BalanceOf(ctx, address, c.usdtContract)
		if err != nil {
			c.log.Warnf("USDT balance fallback failed for %s: %v", address, err)
		} else {
			balance.USDT = usdt
		}
	}

	c.log.Debugf("Audited wallet %s: trx=%s usdt=%s", address, balance.TRX, balance.USDT)
	return balance, nil
}

// BalanceOf calls the TRC20 balanceOf(address) view on contract.
func (c *Client) BalanceOf(ctx context.Context, address, contract string) (decimal.Decimal, error) {
	param, err := AddressParameter(address)
	if err != nil {
		return decimal.Zero, err
	}
	body := map[string]any{
		"owner_address":    address,
		"contract_address": contract,
		"data":             hex.EncodeToString(Selector("balanceOf(address)")) + param,
		"visible":          true,
	}

	var out constantCallResponse
	err = c.retry.Do(ctx, "trongrid.balanceOf", func(ctx context.Context) error {
		return c.call(ctx, http.MethodPost, "/wallet/triggerconstantcontract", body, &out)
	})
	if err != nil {
		return decimal.Zero, err
	}
	if !out.Result.Result || len(out.ConstantResult) == 0 {
		return decimal.Zero, fmt.Errorf("balanceOf rejected: %s", out.Result.Message)
	}

	n, ok := new(big.Int).SetString(strings.TrimPrefix(out.ConstantResult[0], "0x"), 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("invalid balanceOf result %q", out.ConstantResult[0])
	}
	return decimal.NewFromBigInt(n, 0), nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, limiterKey); err != nil {
			return err
		}
	}

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &retry.StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Selector is the 4-byte ABI function selector of signature.
func Selector(signature string) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return h.Sum(nil)[:4]
}

// AddressParameter decodes a base58check TRON address into a left-padded
// 32-byte ABI word (hex) without the 0x41 network prefix.
func AddressParameter(address string) (string, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", address, err)
	}
	if len(raw) != 25 || raw[0] != 0x41 {
		return "", fmt.Errorf("invalid address %q: unexpected payload", address)
	}
	first := sha256.Sum256(raw[:21])
	second := sha256.Sum256(first[:])
	if !bytes.Equal(second[:4], raw[21:]) {
		return "", fmt.Errorf("invalid address %q: checksum mismatch", address)
	}
	return strings.Repeat("0", 24) + hex.EncodeToString(raw[1:21]), nil
}
