// Package broker publishes released batches to an AMQP topic exchange.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"avl-gateway/internal/dispatcher"
)

const (
	heartbeat   = 10 * time.Second
	dialTimeout = 30 * time.Second
)

type Publisher struct {
	uri      string
	exchange string
	enc      Encoding
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewPublisher(uri, exchange string, enc Encoding, lg *slog.Logger) *Publisher {
	return &Publisher{
		uri:      uri,
		exchange: exchange,
		enc:      enc,
		logger:   lg.With("component", "amqp"),
	}
}

func (p *Publisher) Name() string { return "amqp" }

// connect dials the broker and declares the exchange. Caller holds p.mu. The
// TCP dial and the AMQP handshake both end at ctx's deadline.
func (p *Publisher) connect(ctx context.Context) error {
	conn, err := amqp.DialConfig(p.uri, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      dialContext(ctx),
	})
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		p.exchange, // name of the exchange
		"topic",    // type
		true,       // durable
		false,      // delete when complete
		false,      // internal
		false,      // noWait
		nil,        // arguments
	); err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp declare exchange %s: %w", p.exchange, err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err := <-closed; err != nil {
			p.logger.Error("amqp connection closed", "err", err)
		}
		p.drop(conn)
	}()

	p.conn, p.channel = conn, ch
	p.logger.Info("amqp connected", "exchange", p.exchange)
	return nil
}

// dialContext returns an amqp dialer bound to ctx. The deadline it sets on the
// connection covers the handshake; the client clears it once the connection is open.
func dialContext(ctx context.Context) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(dialTimeout)
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (p *Publisher) drop(conn *amqp.Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == conn {
		p.conn, p.channel = nil, nil
	}
}

// Deliver publishes b as one persistent message. A failed publish drops the
// connection; the next Deliver redials.
func (p *Publisher) Deliver(ctx context.Context, b dispatcher.Batch) error {
	now := time.Now()
	body, err := p.enc.Marshal(newMessage(b, now))
	if err != nil {
		return fmt.Errorf("amqp encode: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.connect(ctx); err != nil {
			return err
		}
	}
	err = p.channel.Publish(p.exchange, RoutingKey(b.IMEI), false, false, amqp.Publishing{
		ContentType:  p.enc.ContentType(),
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Body:         body,
	})
	if err != nil {
		_ = p.conn.Close()
		p.conn, p.channel = nil, nil
		return fmt.Errorf("amqp publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn, p.channel = nil, nil
	return err
}
