package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/sakif/todo-api/internal/metrics"
)

const (
	// dialTimeout bounds TCP connect plus the AMQP handshake.
	dialTimeout = 5 * time.Second
	// sendTimeout bounds a single publish on an open channel.
	sendTimeout = 2 * time.Second
	// retryBackoff is how long the worker drops events after a failed
	// redial before it tries the broker again.
	retryBackoff = 5 * time.Second
	bufferSize   = 1024
)

var (
	// ErrBufferFull means the worker is behind and the event was dropped.
	ErrBufferFull = errors.New("events: publish buffer full")
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("events: publisher closed")

	errBrokerBackoff = errors.New("events: broker unavailable, waiting before redial")
)

// connection and channel are the parts of amqp091 the publisher uses.
// *amqp.Channel satisfies channel; amqpConnection adapts *amqp.Connection.
type connection interface {
	openChannel() (channel, error)
	IsClosed() bool
	Close() error
}

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type amqpConnection struct{ *amqp.Connection }

func (c amqpConnection) openChannel() (channel, error) {
	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

type dialFunc func() (connection, error)

// dialBroker dials with a bounded handshake. amqp.Dial would wait 30s
// on a broker that accepts TCP but never answers.
func dialBroker(url string, timeout time.Duration) dialFunc {
	return func() (connection, error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Dial:   amqp.DefaultDial(timeout),
			Locale: "en_US",
		})
		if err != nil {
			return nil, err
		}
		return amqpConnection{conn}, nil
	}
}

type outgoing struct {
	typ        Type
	body       []byte
	occurredAt time.Time
}

// AMQPPublisher sends task events to a durable RabbitMQ queue through
// the default exchange (routing key = queue name).
//
// Publish only enqueues into a bounded buffer. A single worker goroutine
// owns the connection and channel: it publishes, reopens a channel the
// broker closed, and redials a lost connection. Events that cannot be
// delivered are logged, counted and dropped.
type AMQPPublisher struct {
	queue   string
	dial    dialFunc
	backoff time.Duration
	logger  zerolog.Logger

	pending   chan outgoing
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the worker after construction.
	conn    connection
	ch      channel
	retryAt time.Time
}

// NewAMQPPublisher dials the broker, declares the queue and starts the
// worker. Failing here is a startup error; later broker outages only
// drop events.
func NewAMQPPublisher(url, queue string, logger zerolog.Logger) (*AMQPPublisher, error) {
	if url == "" {
		return nil, errors.New("events: AMQP URL is empty")
	}
	return newAMQPPublisher(dialBroker(url, dialTimeout), queue, bufferSize, retryBackoff, logger)
}

func newAMQPPublisher(dial dialFunc, queue string, size int, backoff time.Duration, logger zerolog.Logger) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		queue:   queue,
		dial:    dial,
		backoff: backoff,
		logger:  logger,
		pending: make(chan outgoing, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if err := p.ensureChannel(); err != nil {
		_ = p.closeLink()
		return nil, err
	}
	go p.run()
	return p, nil
}

// Publish queues one event and returns without touching the network.
func (p *AMQPPublisher) Publish(ctx context.Context, event TaskEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.stop:
		return ErrPublisherClosed
	default:
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encoding %s: %w", event.Type, err)
	}

	select {
	case p.pending <- outgoing{typ: event.Type, body: body, occurredAt: event.OccurredAt}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events, delivers what is already queued and
// shuts the channel and connection down.
func (p *AMQPPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done
		err = p.closeLink()
	})
	return err
}

func (p *AMQPPublisher) run() {
	defer close(p.done)
	for {
		select {
		case msg := <-p.pending:
			p.deliver(msg)
		case <-p.stop:
			for {
				select {
				case msg := <-p.pending:
					p.deliver(msg)
				default:
					return
				}
			}
		}
	}
}

func (p *AMQPPublisher) deliver(msg outgoing) {
	if err := p.send(msg); err != nil {
		metrics.EventPublishFailuresTotal.WithLabelValues(string(msg.typ)).Inc()
		p.logger.Warn().Err(err).Str("event", string(msg.typ)).Msg("dropped task event")
	}
}

func (p *AMQPPublisher) send(msg outgoing) error {
	if time.Now().Before(p.retryAt) {
		return errBrokerBackoff
	}
	if err := p.ensureChannel(); err != nil {
		p.retryAt = time.Now().Add(p.backoff)
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	err := p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Type:         string(msg.typ),
			Timestamp:    msg.occurredAt,
			Body:         msg.body,
		},
	)
	if err != nil {
		return fmt.Errorf("events: publishing %s: %w", msg.typ, err)
	}
	return nil
}

// ensureChannel leaves p.ch open and the queue declared. The broker can
// close a channel (404, 406) while the connection stays up, so the two
// are checked separately.
func (p *AMQPPublisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.ch = nil

	if p.conn == nil || p.conn.IsClosed() {
		if p.conn != nil {
			p.logger.Warn().Msg("amqp connection lost, redialing")
			_ = p.conn.Close()
			p.conn = nil
		}
		conn, err := p.dial()
		if err != nil {
			return fmt.Errorf("events: dialing broker: %w", err)
		}
		p.conn = conn
	} else {
		p.logger.Warn().Msg("amqp channel closed, reopening")
	}

	ch, err := p.conn.openChannel()
	if err != nil {
		return fmt.Errorf("events: opening channel: %w", err)
	}

	// Durable so queued events survive a broker restart.
	if _, err := ch.QueueDeclare(
		p.queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		_ = ch.Close()
		return fmt.Errorf("events: declaring queue %s: %w", p.queue, err)
	}

	p.ch = ch
	return nil
}

func (p *AMQPPublisher) closeLink() error {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}
