// Package notification delivers assignment emails. Delivery is fire-and-forget: Dispatcher.Send never
// reports failure to its caller, and a circuit breaker stops hammering a mail server that keeps failing.
package notification

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Message is one email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher accepts messages for best-effort delivery. Implementations must not block on the transport.
type Dispatcher interface {
	Send(ctx context.Context, to, subject, body string)
}

// Options configures NewAsyncDispatcher.
type Options struct {
	// Timeout bounds a single delivery attempt.
	Timeout time.Duration
	// MaxConsecutiveFailures opens the breaker; zero means 5.
	MaxConsecutiveFailures uint32
	// OpenFor is how long the breaker stays open before a trial send; zero means 30s.
	OpenFor time.Duration
}

// AsyncDispatcher sends each message on its own goroutine through a circuit breaker.
// After Drain it drops new messages.
type AsyncDispatcher struct {
	sender  Sender
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
	log     logrus.FieldLogger

	mu     sync.Mutex // guards closed and wg.Add
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncDispatcher returns a dispatcher delivering through sender.
func NewAsyncDispatcher(sender Sender, opts Options, log logrus.FieldLogger) *AsyncDispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxConsecutiveFailures == 0 {
		opts.MaxConsecutiveFailures = 5
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = 30 * time.Second
	}
	maxFailures := opts.MaxConsecutiveFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-smtp",
		MaxRequests: 1,
		Timeout:     opts.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("notification: circuit breaker state changed")
		},
	})
	return &AsyncDispatcher{sender: sender, breaker: breaker, timeout: opts.Timeout, log: log}
}

// Send queues the message and returns immediately. Request cancellation does not abort delivery.
func (d *AsyncDispatcher) Send(ctx context.Context, to, subject, body string) {
	msg := Message{To: to, Subject: subject, Body: body}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.WithField("to", to).Warn("notification: dropped after shutdown")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.deliver(sendCtx, msg); err != nil {
			entry := d.log.WithField("to", to).WithError(err)
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				entry.Warn("notification: dropped while circuit breaker is open")
				return
			}
			entry.Error("notification: delivery failed")
		}
	}()
}

func (d *AsyncDispatcher) deliver(ctx context.Context, msg Message) error {
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.sender.Send(ctx, msg)
	})
	return err
}

// State reports the breaker state.
func (d *AsyncDispatcher) State() gobreaker.State {
	return d.breaker.State()
}

// Drain stops accepting messages and waits for in-flight deliveries or until ctx is done.
func (d *AsyncDispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSender writes messages to the log instead of delivering them. Used when no SMTP host is configured.
type LogSender struct {
	Log logrus.FieldLogger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	s.Log.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("notification: email not sent, no SMTP host configured")
	return nil
}
