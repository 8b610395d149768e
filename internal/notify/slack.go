package notify

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Dan9191/bank-batch/internal/config"
	"github.com/Dan9191/bank-batch/internal/retry"
	"github.com/slack-go/slack"
)

// SlackSender posts to incoming webhooks, one URL per channel.
type SlackSender struct {
	urls   map[Channel]string
	client *http.Client
}

// NewSlackSender routes channels without their own webhook to SLACK_WEBHOOK_URL.
func NewSlackSender(cfg *config.Config) *SlackSender {
	urls := map[Channel]string{
		ChannelOps:             cfg.SlackWebhookURL,
		ChannelRisk:            cfg.SlackRiskWebhookURL,
		ChannelLargeWithdrawal: cfg.SlackLargeWithdrawalWebhookURL,
		ChannelWallet:          cfg.SlackWalletAlertWebhookURL,
	}
	for ch, url := range urls {
		if url == "" {
			urls[ch] = cfg.SlackWebhookURL
		}
	}
	return &SlackSender{urls: urls, client: &http.Client{Timeout: 10 * time.Second}}
}

func (s *SlackSender) Name() string { return "slack" }

func (s *SlackSender) Send(ctx context.Context, channel Channel, text string) error {
	url := s.urls[channel]
	if url == "" {
		return ErrNoRoute
	}
	err := slack.PostWebhookCustomHTTPContext(ctx, url, s.client, &slack.WebhookMessage{Text: text})
	var status slack.StatusCodeError
	if errors.As(err, &status) {
		return &retry.StatusError{Code: status.Code, Body: status.Status}
	}
	return err
}
