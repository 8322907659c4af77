package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"donations/internal/broadcast"
	"donations/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// Bus is a broadcast.Bus on a RabbitMQ fanout exchange. Every subscriber
// gets its own exclusive queue, so every process sees every message.
type Bus struct {
	url          string
	exchangeName string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
	closed       atomic.Bool
}

var _ broadcast.Bus = (*Bus)(nil)

// NewBus connects to the broker and declares the exchange.
func NewBus(url, exchangeName string) (*Bus, error) {
	b := &Bus{url: url, exchangeName: exchangeName}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.connectLocked(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bus) connectLocked() (*amqp091.Channel, error) {
	if b.channel != nil && !b.channel.IsClosed() {
		return b.channel, nil
	}
	b.dropLocked()

	conn, ch, err := b.dial()
	if err != nil {
		return nil, err
	}
	b.conn, b.channel = conn, ch
	return ch, nil
}

func (b *Bus) dial() (*amqp091.Connection, *amqp091.Channel, error) {
	conn, err := amqp091.Dial(b.url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		b.exchangeName, // name
		"fanout",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	return conn, ch, nil
}

func (b *Bus) dropLocked() {
	if b.channel != nil {
		b.channel.Close()
		b.channel = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// Publish sends msg to every subscriber of the exchange.
func (b *Bus) Publish(ctx context.Context, msg broadcast.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed.Load() {
		return broadcast.ErrClosed
	}

	body, err := NewChangeMessage(msg).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isCircuitOpen() {
		return fmt.Errorf("publish change message: circuit breaker is open")
	}

	ch, err := b.connectLocked()
	if err != nil {
		b.recordFailure()
		return err
	}

	err = ch.PublishWithContext(
		ctx,
		b.exchangeName, // exchange
		"",             // routing key, ignored by fanout
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		b.recordFailure()
		if isConnectionError(err) {
			b.dropLocked()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	b.recordSuccess()

	slog.DebugContext(ctx, "Published change message",
		log.FieldScope, msg.Scope,
		log.FieldMarker, msg.Marker,
		"exchange", b.exchangeName)

	return nil
}

// Subscribe consumes from a fresh exclusive queue bound to the exchange.
// Lost connections are re-established with exponential backoff until ctx is
// done.
func (b *Bus) Subscribe(ctx context.Context) (<-chan broadcast.Message, error) {
	if b.closed.Load() {
		return nil, broadcast.ErrClosed
	}
	conn, deliveries, err := b.consume()
	if err != nil {
		return nil, err
	}

	out := make(chan broadcast.Message, 32)
	go b.consumeLoop(ctx, conn, deliveries, out)
	return out, nil
}

func (b *Bus) consume() (*amqp091.Connection, <-chan amqp091.Delivery, error) {
	conn, ch, err := b.dial()
	if err != nil {
		return nil, nil, err
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", b.exchangeName, false, nil); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("start consuming: %w", err)
	}
	return conn, deliveries, nil
}

func (b *Bus) consumeLoop(ctx context.Context, conn *amqp091.Connection, deliveries <-chan amqp091.Delivery, out chan<- broadcast.Message) {
	defer close(out)
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				if conn != nil {
					conn.Close()
				}
				conn, deliveries = b.reconnect(ctx)
				if deliveries == nil {
					return
				}
				continue
			}

			msg, err := ChangeMessageFromJSON(d.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal change message", log.FieldError, err)
				d.Nack(false, false)
				continue
			}
			d.Ack(false)

			select {
			case out <- msg.Message():
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Bus) reconnect(ctx context.Context) (*amqp091.Connection, <-chan amqp091.Delivery) {
	for attempt := 0; ; attempt++ {
		if b.closed.Load() {
			return nil, nil
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP subscription lost, reconnecting", "attempt", attempt+1, "backoff", wait)
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(wait):
		}
		conn, deliveries, err := b.consume()
		if err == nil {
			slog.InfoContext(ctx, "AMQP subscription restored", "exchange", b.exchangeName)
			return conn, deliveries
		}
		slog.ErrorContext(ctx, "AMQP reconnect failed", log.FieldError, err)
	}
}

func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked()
	return nil
}

// isCircuitOpen and recordFailure are called with b.mu held.
func (b *Bus) isCircuitOpen() bool {
	if atomic.LoadInt32(&b.state) != StateOpen {
		return false
	}
	if time.Since(b.lastFailure) > openTimeout {
		atomic.CompareAndSwapInt32(&b.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (b *Bus) recordSuccess() {
	atomic.StoreInt64(&b.failureCount, 0)
	atomic.StoreInt32(&b.state, StateClosed)
}

func (b *Bus) recordFailure() {
	b.lastFailure = time.Now()
	if atomic.AddInt64(&b.failureCount, 1) >= maxFailures || atomic.LoadInt32(&b.state) == StateHalfOpen {
		atomic.StoreInt32(&b.state, StateOpen)
	}
}

// exponentialBackoff returns 1s, 2s, 4s ... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
