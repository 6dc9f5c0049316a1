package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"rette/internal/core"
)

// Circuit breaker states
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	dialAttempts   = 3
)

// ErrCircuitOpen is returned while the broker is considered unavailable.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// channel is the subset of *amqp091.Channel the publisher needs.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type dialFunc func(url string) (channel, io.Closer, error)

func dialBroker(url string) (channel, io.Closer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return ch, conn, nil
}

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// Publisher sends confirmed payment events to a durable direct exchange.
// It reconnects lazily after connection errors and stops trying for
// openTimeout after maxFailures consecutive failures.
type Publisher struct {
	url          string
	exchangeName string
	routingKey   string
	dial         dialFunc
	sleep        func(context.Context, time.Duration) error

	mu      sync.Mutex
	channel channel
	conn    io.Closer

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewPublisher connects to the broker and declares the exchange.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	p := newPublisher(cfg, dialBroker)
	if err := p.connectWithRetry(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func newPublisher(cfg Config, dial dialFunc) *Publisher {
	return &Publisher{
		url:          cfg.URL,
		exchangeName: cfg.Exchange,
		routingKey:   cfg.RoutingKey,
		dial:         dial,
		sleep:        sleepContext,
	}
}

func (p *Publisher) Name() string { return "amqp" }

// Record implements services.Recorder.
func (p *Publisher) Record(ctx context.Context, ev core.PaymentEvent) error {
	return p.PublishPayment(ctx, ev)
}

func (p *Publisher) connectWithRetry(ctx context.Context) error {
	var err error
	for attempt := range dialAttempts {
		if attempt > 0 {
			if serr := p.sleep(ctx, exponentialBackoff(attempt-1)); serr != nil {
				return serr
			}
		}
		p.mu.Lock()
		_, err = p.connectLocked()
		p.mu.Unlock()
		if err == nil {
			return nil
		}
		slog.WarnContext(ctx, "AMQP connection attempt failed", "attempt", attempt+1, "error", err)
	}
	return err
}

// connectLocked returns the open channel, dialing when there is none.
func (p *Publisher) connectLocked() (channel, error) {
	if p.channel != nil {
		return p.channel, nil
	}
	ch, conn, err := p.dial(p.url)
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(
		p.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		if conn != nil {
			conn.Close()
		}
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p.channel, p.conn = ch, conn
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
	p.channel, p.conn = nil, nil
}

// PublishPayment publishes one persistent message per event. The event id
// doubles as the AMQP message id so consumers can deduplicate.
func (p *Publisher) PublishPayment(ctx context.Context, ev core.PaymentEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.isCircuitOpen() {
		return fmt.Errorf("publish payment %s: %w", ev.EventID, ErrCircuitOpen)
	}

	body, err := NewPaymentMessage(ev).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.connectLocked()
	if err != nil {
		p.recordFailure()
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		pubCtx,
		p.exchangeName, // exchange
		p.routingKey,   // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    ev.EventID,
			Type:         string(ev.Operation),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			p.resetLocked()
		}
		p.recordFailure()
		return fmt.Errorf("publish message: %w", err)
	}
	p.recordSuccess()

	slog.InfoContext(ctx, "Published payment event",
		"event_id", ev.EventID,
		"operation", ev.Operation,
		"exchange", p.exchangeName,
		"routing_key", p.routingKey)

	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	var err error
	if p.conn != nil {
		err = p.conn.Close()
	}
	p.channel, p.conn = nil, nil
	return err
}

// isCircuitOpen moves an open circuit to half-open once openTimeout has
// passed since the last failure.
func (p *Publisher) isCircuitOpen() bool {
	if atomic.LoadInt32(&p.state) != StateOpen {
		return false
	}
	p.mu.Lock()
	last := p.lastFailure
	p.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&p.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

// recordFailure expects p.mu to be held.
func (p *Publisher) recordFailure() {
	p.lastFailure = time.Now()
	n := atomic.AddInt64(&p.failureCount, 1)
	if n >= maxFailures || atomic.LoadInt32(&p.state) == StateHalfOpen {
		if atomic.SwapInt32(&p.state, StateOpen) != StateOpen {
			slog.Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

func (p *Publisher) recordSuccess() {
	atomic.StoreInt64(&p.failureCount, 0)
	atomic.StoreInt32(&p.state, StateClosed)
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return 30 * time.Second
	}
	return min(time.Duration(1<<attempt)*time.Second, 30*time.Second)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{"connection", "EOF", "broken pipe", "closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
