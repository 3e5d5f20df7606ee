package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lavraseats/lavraseats/config"
	"github.com/nats-io/nats.go"
)

// Client wraps a NATS connection with its JetStream context. Every binary
// that talks to NATS goes through it so they all agree on the stream layout.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect dials NATS and makes sure the change stream exists.
func Connect(cfg config.Nats) (*Client, error) {
	nc, err := nats.Connect(cfg.ConnStr(), nats.Name("lavraseats"))
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:      cfg.Stream,
		Subjects:  cfg.Subjects(),
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Hour * 24 * 7,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		nc.Close()
		return nil, fmt.Errorf("create stream %s: %w", cfg.Stream, err)
	}

	return &Client{conn: nc, js: js}, nil
}

func (c *Client) Close() {
	c.conn.Close()
}

// Publish hands data to JetStream without waiting for the ack.
func (c *Client) Publish(subject string, data []byte) error {
	_, err := c.js.PublishAsync(subject, data)

	return err
}

// PublishChange encodes ev and publishes it, waiting for the stream ack.
func (c *Client) PublishChange(subject string, ev ChangeEvent) error {
	data, err := Encode(ev)
	if err != nil {
		return err
	}
	if _, err := c.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s %d: %w", ev.Table, ev.ID, err)
	}
	return nil
}

// Flush waits until every async publish has been acknowledged.
func (c *Client) Flush(ctx context.Context) error {
	select {
	case <-c.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delivery is one message pulled from a durable consumer.
type Delivery interface {
	Data() []byte
	Ack() error
	Nak() error
}

type natsDelivery struct {
	msg *nats.Msg
}

func (d natsDelivery) Data() []byte { return d.msg.Data }
func (d natsDelivery) Ack() error   { return d.msg.Ack() }
func (d natsDelivery) Nak() error   { return d.msg.Nak() }

func consumerName(subject string) string {
	return strings.ReplaceAll(subject+".consumer", ".", "-")
}

// Subscribe pulls from a durable consumer on subject and passes every message
// to handle until ctx is done. handle owns the ack.
func (c *Client) Subscribe(ctx context.Context, subject string, handle func(Delivery)) error {
	subscription, err := c.js.PullSubscribe(subject, consumerName(subject), nats.ManualAck())
	if err != nil {
		return fmt.Errorf("pull subscribe %s: %w", subject, err)
	}

	for {
		select {
		case <-ctx.Done():
			if err := subscription.Unsubscribe(); err != nil {
				slog.Warn("failed to unsubscribe from subject", "subject", subject, "error", err)
			}

			return nil
		default:
			msgs, err := subscription.Fetch(4, nats.MaxWait(200*time.Millisecond))
			if err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("fetch %s: %w", subject, err)
			}

			for _, msg := range msgs {
				handle(natsDelivery{msg: msg})
			}
		}
	}
}

// Listen delivers plain (non-durable) messages on subject to handle until
// ctx is done. Missed messages are not replayed.
func (c *Client) Listen(ctx context.Context, subject string, handle func(data []byte)) error {
	ch := make(chan *nats.Msg, 64)
	sub, err := c.conn.ChanSubscribe(subject, ch)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("failed to unsubscribe from subject", "subject", subject, "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			handle(msg.Data)
		}
	}
}
