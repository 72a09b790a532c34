// Package notify delivers order confirmation messages. Delivery never blocks
// or fails a checkout.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/safar/storefront/internal/observability"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type Message struct {
	Recipient string
	Subject   string
	Body      string
	// Reference ties the message back to the order in logs.
	Reference string
}

// Notifier is an outbound transport such as SMTP or a mail API.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	// SendTimeout bounds a background delivery including its retries.
	SendTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second, SendTimeout: 30 * time.Second}
}

// Dispatcher retries failed sends with exponential backoff (1s, 2s, 4s... for
// the default policy) and trips a circuit breaker when the transport keeps
// failing, so a dead mail server does not pile up goroutines.
type Dispatcher struct {
	notifier Notifier
	breaker  *gobreaker.CircuitBreaker[struct{}]
	policy   Policy
	logger   *zap.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, policy Policy, logger *zap.Logger) *Dispatcher {
	logger = observability.OrNop(logger)
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.SendTimeout <= 0 {
		policy.SendTimeout = DefaultPolicy().SendTimeout
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "notifier",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Dispatcher{
		notifier: notifier,
		breaker:  breaker,
		policy:   policy,
		logger:   logger,
	}
}

// Deliver sends msg synchronously, retrying per the policy.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) error {
	if msg.Recipient == "" {
		return errors.New("notify: message has no recipient")
	}

	attempt := 0
	operation := func() error {
		attempt++
		_, err := d.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, d.notifier.Send(ctx, msg)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		d.logger.Info("notification send failed, retrying",
			zap.String("reference", msg.Reference),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, d.backOff(ctx), notify); err != nil {
		return fmt.Errorf("deliver notification after %d attempts: %w", attempt, err)
	}
	return nil
}

// Dispatch delivers msg in the background. Failures are logged, never
// returned. The caller's context only contributes its values: delivery
// outlives the request that triggered it.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.policy.SendTimeout)
		defer cancel()

		if err := d.Deliver(sendCtx, msg); err != nil {
			d.logger.Warn("notification dropped",
				zap.String("reference", msg.Reference),
				zap.Error(err))
		}
	}()
}

// Wait blocks until all background deliveries have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.policy.InitialDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = d.policy.InitialDelay * time.Duration(1<<uint(d.policy.MaxAttempts))
	exp.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(d.policy.MaxAttempts-1)), ctx)
}
