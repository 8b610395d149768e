package misttrack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Dan9191/bank-batch/internal/config"
	"github.com/Dan9191/bank-batch/internal/models"
	"github.com/Dan9191/bank-batch/internal/ratelimit"
	"github.com/Dan9191/bank-batch/internal/retry"
	"github.com/Dan9191/bank-batch/internal/risk"
	"github.com/sirupsen/logrus"
)

const (
	createTaskPath = "/v2/risk_score_create_task"
	queryTaskPath  = "/v2/risk_score_query_task"
	limiterKey     = "misttrack"
)

// ErrNotReady is returned when polling ends before the vendor has a result.
var ErrNotReady = errors.New("risk result not ready")

// Client runs asynchronous risk-score tasks against MistTrack
type Client struct {
	url          string
	keys         map[risk.Tier]string
	coin         string
	pollAttempts int
	pollInterval time.Duration
	client       *http.Client
	retry        retry.Policy
	limiter      ratelimit.Limiter
	log          logrus.FieldLogger
}

// NewClient initializes a new MistTrack client
func NewClient(cfg *config.Config, policy retry.Policy, limiter ratelimit.Limiter, log logrus.FieldLogger) *Client {
	attempts := cfg.MistTrackPollAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{
		url:          strings.TrimSuffix(cfg.MistTrackURL, "/"),
		keys:         cfg.MistTrackKeys(),
		coin:         cfg.MistTrackCoin,
		pollAttempts: attempts,
		pollInterval: cfg.MistTrackPollInterval,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		retry:   policy,
		limiter: limiter,
		log:     log,
	}
}

type envelope struct {
	Success *bool           `json:"success"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type result struct {
	Score        int                 `json:"score"`
	RiskLevel    string              `json:"risk_level"`
	HackingEvent string              `json:"hacking_event"`
	DetailList   []string            `json:"detail_list"`
	RiskDetail   []models.RiskDetail `json:"risk_detail"`
	ScannedTS    int64               `json:"scanned_ts"`
	HasResult    bool                `json:"has_result"`
	Error        string              `json:"error"`
	ErrorMsg     string              `json:"error_msg"`
}

// AssessWallet scores an address using the endpoint key for tier.
func (c *Client) AssessWallet(ctx context.Context, tier risk.Tier, address string) (models.RiskAssessment, error) {
	return c.assess(ctx, tier, "address", address)
}

// AssessTransaction scores a single inbound transfer.
func (c *Client) AssessTransaction(ctx context.Context, tier risk.Tier, txHash string) (models.RiskAssessment, error) {
	return c.assess(ctx, tier, "txid", txHash)
}

func (c *Client) assess(ctx context.Context, tier risk.Tier, field, subject string) (models.RiskAssessment, error) {
	key := c.keys[tier]
	if key == "" {
		return models.RiskAssessment{}, fmt.Errorf("no API key configured for tier %s", tier)
	}
	log := c.log.WithFields(logrus.Fields{field: subject, "tier": tier})

	if err := c.createTask(ctx, key, field, subject); err != nil {
		return models.RiskAssessment{}, fmt.Errorf("failed to create risk task: %w", err)
	}
	log.Debug("Risk task created")

	for attempt := 1; attempt <= c.pollAttempts; attempt++ {
		if err := wait(ctx, c.pollInterval); err != nil {
			return models.RiskAssessment{}, err
		}
		res, ready, err := c.queryTask(ctx, key, field, subject)
		if err != nil {
			return models.RiskAssessment{}, fmt.Errorf("failed to query risk task: %w", err)
		}
		if ready {
			log.Infof("Risk result ready after %d polls: score=%d level=%s", attempt, res.Score, res.RiskLevel)
			return res.assessment(subject), nil
		}
		log.Debugf("Risk result not ready (%d/%d)", attempt, c.pollAttempts)
	}
	return models.RiskAssessment{}, fmt.Errorf("%s %s after %d polls: %w", field, subject, c.pollAttempts, ErrNotReady)
}

func (c *Client) createTask(ctx context.Context, key, field, subject string) error {
	payload := map[string]string{field: subject, "coin": c.coin, "api_key": key}
	var env envelope
	err := c.retry.Do(ctx, "misttrack.create", func(ctx context.Context) error {
		return c.call(ctx, http.MethodPost, createTaskPath, nil, payload, &env)
	})
	if err != nil {
		return err
	}
	if env.Success == nil {
		return fmt.Errorf("invalid response: missing success field")
	}
	if !*env.Success {
		return fmt.Errorf("vendor error: %s", env.Msg)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" || string(env.Data) == "{}" {
		return fmt.Errorf("invalid response: empty data")
	}
	var data result
	if err := json.Unmarshal(env.Data, &data); err == nil {
		if msg := firstNonEmpty(data.Error, data.ErrorMsg); msg != "" {
			return fmt.Errorf("vendor error: %s", msg)
		}
	}
	return nil
}

func (c *Client) queryTask(ctx context.Context, key, field, subject string) (result, bool, error) {
	params := url.Values{field: {subject}, "coin": {c.coin}, "api_key": {key}}
	var env envelope
	err := c.retry.Do(ctx, "misttrack.query", func(ctx context.Context) error {
		return c.call(ctx, http.MethodGet, queryTaskPath, params, nil, &env)
	})
	if err != nil {
		return result{}, false, err
	}
	if env.Success == nil || !*env.Success {
		msg := strings.ToLower(env.Msg)
		if strings.Contains(msg, "not ready") || strings.Contains(msg, "no result") {
			return result{}, false, nil
		}
		return result{}, false, fmt.Errorf("vendor error: %s", env.Msg)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		return result{}, false, fmt.Errorf("failed to decode result: %w", err)
	}
	var res result
	if err := json.Unmarshal(env.Data, &res); err != nil {
		return result{}, false, fmt.Errorf("failed to decode result: %w", err)
	}
	_, hasScore := fields["score"]
	return res, hasScore || res.HasResult, nil
}

func (c *Client) call(ctx context.Context, method, path string, params url.Values, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, limiterKey); err != nil {
			return err
		}
	}

	target := c.url + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
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
		return fmt.Errorf("invalid JSON response: %w", err)
	}
	return nil
}

func (r result) assessment(subject string) models.RiskAssessment {
	level := r.RiskLevel
	if level == "" {
		level = "Unknown"
	}
	return models.RiskAssessment{
		Subject:      subject,
		Score:        r.Score,
		RiskLevel:    level,
		HackingEvent: r.HackingEvent,
		DetailList:   r.DetailList,
		RiskDetail:   r.RiskDetail,
		ScannedTS:    r.ScannedTS,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
