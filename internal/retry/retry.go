package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// Policy retries transient failures with exponential backoff.
type Policy struct {
	MaxRetries   int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	// Retryable overrides IsTransient when set.
	Retryable func(error) bool
	Logger    logrus.FieldLogger
}

// Default mirrors the vendor budget: 3 retries, 1s doubling.
func Default(logger logrus.FieldLogger) Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   2,
		MaxDelay:     30 * time.Second,
		Logger:       logger,
	}
}

// ExhaustedError reports a transient failure that outlived the retry budget.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do runs op until it succeeds, fails permanently, or the budget runs out.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := 0
	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !p.retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		if p.Logger == nil {
			return
		}
		p.Logger.WithFields(logrus.Fields{
			"call":    name,
			"attempt": attempts,
			"max":     p.MaxRetries + 1,
			"delay":   next.String(),
		}).Warnf("transient failure, will retry: %v", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(p.MaxRetries)), ctx), notify)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	if p.retryable(err) {
		return &ExhaustedError{Attempts: attempts, Err: err}
	}
	return err
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = time.Millisecond
	}
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 2
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Minute
	}
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (p Policy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsTransient(err)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as safe to retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d: %s", e.Code, e.Body)
}

// IsTransient reports timeouts, connection failures, rate limiting and gateway errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case 429, 502, 503, 504:
			return true
		}
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
