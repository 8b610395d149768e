package misttrack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Dan9191/bank-batch/internal/config"
	"github.com/Dan9191/bank-batch/internal/retry"
	"github.com/Dan9191/bank-batch/internal/risk"
	"github.com/sirupsen/logrus"
)

const address = "TXaddr"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := &config.Config{
		MistTrackURL:          srv.URL,
		MistTrackAPIKeyLow:    "low-key",
		MistTrackAPIKeyHigh:   "high-key",
		MistTrackCoin:         "USDT-TRC20",
		MistTrackPollAttempts: 3,
		MistTrackPollInterval: time.Millisecond,
	}
	policy := retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 2}
	return NewClient(cfg, policy, nil, logger)
}

func created(w http.ResponseWriter) {
	w.Write([]byte(`{"success":true,"msg":"","data":{"task":"queued"}}`))
}

func TestAssessWallet_PollsUntilReady(t *testing.T) {
	var polls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case createTaskPath:
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["address"] != address || body["api_key"] != "high-key" || body["coin"] != "USDT-TRC20" {
				t.Errorf("unexpected create payload %v", body)
			}
			created(w)
		case queryTaskPath:
			if r.URL.Query().Get("api_key") != "high-key" {
				t.Errorf("query used wrong key %q", r.URL.Query().Get("api_key"))
			}
			switch atomic.AddInt32(&polls, 1) {
			case 1:
				w.Write([]byte(`{"success":false,"msg":"Task Not Ready"}`))
			case 2:
				w.Write([]byte(`{"success":true,"data":{"has_result":false}}`))
			default:
				w.Write([]byte(`{"success":true,"data":{"score":87,"risk_level":"High","hacking_event":"Exchange hack","detail_list":["Involved Illicit Activity"],"risk_detail":[{"label":"mixer","risk_type":"sanctioned","volume":1200.5,"percent":12.5}],"scanned_ts":1709251200}}`))
			}
		}
	})

	got, err := c.AssessWallet(context.Background(), risk.TierHigh, address)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Subject != address || got.Score != 87 || got.RiskLevel != "High" || got.HackingEvent != "Exchange hack" {
		t.Fatalf("unexpected assessment %+v", got)
	}
	if len(got.RiskDetail) != 1 || got.RiskDetail[0].Label != "mixer" || got.RiskDetail[0].RiskType != "sanctioned" {
		t.Fatalf("unexpected risk detail %+v", got.RiskDetail)
	}
	if polls != 3 {
		t.Fatalf("expected 3 polls, got %d", polls)
	}
}

func TestAssessTransaction_UsesTxid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case createTaskPath:
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["txid"] != "abc123" || body["api_key"] != "low-key" {
				t.Errorf("unexpected create payload %v", body)
			}
			created(w)
		case queryTaskPath:
			if r.URL.Query().Get("txid") != "abc123" {
				t.Errorf("query missing txid")
			}
			w.Write([]byte(`{"success":true,"data":{"has_result":true,"score":3}}`))
		}
	})

	// moderate tier falls back to the low key when unset
	got, err := c.AssessTransaction(context.Background(), risk.TierModerate, "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.RiskLevel != "Unknown" || got.Score != 3 {
		t.Fatalf("unexpected assessment %+v", got)
	}
}

func TestAssessWallet_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "create rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"success":false,"msg":"invalid api key"}`))
			},
			want: "invalid api key",
		},
		{
			name: "create missing success",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"data":{"x":1}}`))
			},
			want: "missing success",
		},
		{
			name: "create reports error in data",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"success":true,"data":{"error_msg":"unsupported coin"}}`))
			},
			want: "unsupported coin",
		},
		{
			name: "query vendor error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == createTaskPath {
					created(w)
					return
				}
				w.Write([]byte(`{"success":false,"msg":"quota exceeded"}`))
			},
			want: "quota exceeded",
		},
		{
			name: "never ready",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == createTaskPath {
					created(w)
					return
				}
				w.Write([]byte(`{"success":false,"msg":"no result yet"}`))
			},
			want: ErrNotReady.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			_, err := c.AssessWallet(context.Background(), risk.TierLow, address)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestAssessWallet_RetriesRateLimitedCreate(t *testing.T) {
	var creates int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == createTaskPath {
			if atomic.AddInt32(&creates, 1) == 1 {
				http.Error(w, "slow down", http.StatusTooManyRequests)
				return
			}
			created(w)
			return
		}
		w.Write([]byte(`{"success":true,"data":{"score":10,"risk_level":"Low"}}`))
	})

	if _, err := c.AssessWallet(context.Background(), risk.TierLow, address); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creates != 2 {
		t.Fatalf("expected one retry, got %d creates", creates)
	}
}

func TestAssessWallet_MissingKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	c.keys = map[risk.Tier]string{}
	if _, err := c.AssessWallet(context.Background(), risk.TierLow, address); err == nil {
		t.Fatal("expected error without a key")
	}
}

func TestAssessWallet_Cancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { created(w) })
	c.pollInterval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := c.AssessWallet(ctx, risk.TierLow, address); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
