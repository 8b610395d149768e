// Package notify delivers operator alerts. Delivery is best effort: a failed
// sender is retried, logged and reported, never allowed to fail a batch run.
package notify

import (
	"context"
	"errors"

	"github.com/Dan9191/bank-batch/internal/config"
	"github.com/Dan9191/bank-batch/internal/retry"
	"github.com/sirupsen/logrus"
)

// Channel names an alert stream; each sender maps it to its own destination.
type Channel string

const (
	ChannelOps             Channel = "ops"
	ChannelRisk            Channel = "risk"
	ChannelLargeWithdrawal Channel = "large_withdrawal"
	ChannelWallet          Channel = "wallet"
)

// ErrNoRoute means the sender has no destination for the channel.
var ErrNoRoute = errors.New("no route for channel")

// Sender delivers one message to one backend.
type Sender interface {
	Name() string
	Send(ctx context.Context, channel Channel, text string) error
}

// Notifier fans a message out to every configured sender.
type Notifier struct {
	senders []Sender
	retry   retry.Policy
	log     logrus.FieldLogger
}

func New(log logrus.FieldLogger, policy retry.Policy, senders ...Sender) *Notifier {
	return &Notifier{senders: senders, retry: policy, log: log}
}

// Send returns the joined delivery failures so callers can log them.
func (n *Notifier) Send(ctx context.Context, channel Channel, text string) error {
	if n == nil {
		return nil
	}
	var errs []error
	delivered := 0
	for _, s := range n.senders {
		err := n.retry.Do(ctx, "notify."+s.Name(), func(ctx context.Context) error {
			return s.Send(ctx, channel, text)
		})
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrNoRoute):
		default:
			n.log.WithFields(logrus.Fields{"sender": s.Name(), "channel": channel}).Errorf("Notification failed: %v", err)
			errs = append(errs, err)
		}
	}
	if delivered == 0 && len(errs) == 0 {
		n.log.WithField("channel", channel).Warn("Notification skipped: no sender configured")
	}
	return errors.Join(errs...)
}

// FromConfig wires Slack for every channel plus e-mail and Telegram for the
// escalation channels when they are configured.
func FromConfig(cfg *config.Config, log logrus.FieldLogger, policy retry.Policy) (*Notifier, error) {
	senders := []Sender{NewSlackSender(cfg)}
	critical := []Channel{ChannelRisk, ChannelWallet, ChannelLargeWithdrawal}
	if es := NewEmailSender(cfg, critical...); es != nil {
		senders = append(senders, es)
	}
	ts, err := NewTelegramSender(cfg, critical...)
	if err != nil {
		return nil, err
	}
	if ts != nil {
		senders = append(senders, ts)
	}
	return New(log, policy, senders...), nil
}

func routes(channels []Channel) map[Channel]bool {
	set := make(map[Channel]bool, len(channels))
	for _, ch := range channels {
		set[ch] = true
	}
	return set
}
