// Package bus hands fire-and-forget events to other services over core NATS
// subjects. Nothing is persisted, delivery reaches whoever is subscribed at
// publish time.
package bus

import (
	"context"
	"errors"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
)

var ErrNotConnected = errors.New("bus is not connected")

const flushTimeout = 5 * time.Second

type Bus struct {
	conn   *nats.Conn
	source string
}

// New connects to url. Source is stamped on every message so receivers can
// tell which service sent it.
func New(url, source string, opts ...nats.Option) (*Bus, error) {
	conn, err := nats.Connect(url, append([]nats.Option{nats.Name(source)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Bus{conn: conn, source: source}, nil
}

func (b *Bus) Close() {
	if b == nil {
		return
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
	}
}

// Message encodes v into a message for subject.
func (b *Bus) Message(subject string, v any) (*nats.Msg, error) {
	data, err := jsoniter.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	if b != nil && len(b.source) > 0 {
		msg.Header.Set("Source", b.source)
	}
	return msg, nil
}

// Publish sends v to subject and waits for the server to take it, bounded by
// ctx or a short default when ctx has no deadline.
func (b *Bus) Publish(ctx context.Context, subject string, v any) error {
	if b == nil || b.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := b.Message(subject, v)
	if err != nil {
		return err
	}
	if err := b.conn.PublishMsg(msg); err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); ok {
		return b.conn.FlushWithContext(ctx)
	}
	return b.conn.FlushTimeout(flushTimeout)
}
