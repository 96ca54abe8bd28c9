package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// PublishBuffer bounds the events waiting for the broker.
const PublishBuffer = 256

// Publisher sends BookingEvents to a fanout exchange so that every
// server instance's consumer sees them.  Publish only enqueues; one
// goroutine owns the connection, opens it lazily and re-dials after a
// failure.  Errors are logged, never returned: a broker outage must not
// fail or stall a booking operation.
type Publisher struct {
	url      string
	exchange string
	timeout  time.Duration
	log      *slog.Logger
	dial     func(url string) (*amqp.Connection, error)

	queue   chan BookingEvent
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64

	// owned by run
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a running Publisher for the given broker URL and
// exchange.  Close stops it.
func NewPublisher(url, exchange string, log *slog.Logger) *Publisher {
	p := newPublisher(url, exchange, log, PublishBuffer, nil)
	go p.run()
	return p
}

func newPublisher(url, exchange string, log *slog.Logger, buffer int, dial func(string) (*amqp.Connection, error)) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{
		url:      url,
		exchange: exchange,
		timeout:  3 * time.Second,
		log:      log,
		dial:     dial,
		queue:    make(chan BookingEvent, buffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if p.dial == nil {
		p.dial = func(u string) (*amqp.Connection, error) {
			return amqp.DialConfig(u, amqp.Config{Dial: amqp.DefaultDial(p.timeout)})
		}
	}
	return p
}

// Publish implements Sink.  It never waits on the broker: when the
// buffer is full or the publisher is closed the event is dropped.
func (p *Publisher) Publish(_ context.Context, ev BookingEvent) {
	select {
	case <-p.stop:
		p.drop(ev, "closed")
		return
	default:
	}
	select {
	case p.queue <- ev:
	default:
		p.drop(ev, "buffer full")
	}
}

func (p *Publisher) drop(ev BookingEvent, reason string) {
	p.dropped.Add(1)
	p.log.Warn("event_publish_dropped", "type", ev.Type, "booking_id", ev.BookingID, "reason", reason)
}

// Dropped returns how many events were discarded without being sent.
func (p *Publisher) Dropped() int64 { return p.dropped.Load() }

func (p *Publisher) run() {
	defer close(p.done)
	defer p.reset()
	for {
		select {
		case <-p.stop:
			return
		case ev := <-p.queue:
			p.send(ev)
		}
	}
}

func (p *Publisher) send(ev BookingEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("event_marshal_failed", "type", ev.Type, "booking_id", ev.BookingID, "err", err)
		return
	}
	ch, err := p.channel()
	if err != nil {
		p.log.Warn("event_publish_failed", "type", ev.Type, "booking_id", ev.BookingID, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, p.exchange, ev.Type, false, false, pub); err != nil {
		p.log.Warn("event_publish_failed", "type", ev.Type, "booking_id", ev.BookingID, "err", err)
		p.reset()
	}
}

// channel returns an open channel, dialing when needed.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	conn, err := p.dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, p.exchange); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close stops the publishing goroutine, waits for an in-flight send to
// finish and releases the broker connection.  Queued events are dropped.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.stop) })
	<-p.done
	return nil
}

// declareExchange idempotently declares the durable fanout exchange.
func declareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}
