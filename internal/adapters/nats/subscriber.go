package natsadapter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
)

// Handler processes one event message.
type Handler func(ctx context.Context, subject string, data []byte) error

// Subscriber implements ports.EventSubscriber using NATS JetStream. Every
// subscription lives until the context passed to Subscribe* is done.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext

	mu   sync.Mutex
	subs map[*nats.Subscription]struct{}
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := Connect(url)
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js, subs: make(map[*nats.Subscription]struct{})}, nil
}

// SubscribeFieldEvents delivers field created and deleted events published
// from now on.
func (s *Subscriber) SubscribeFieldEvents(ctx context.Context, handler func(ctx context.Context, subject string, data []byte) error) error {
	return s.subscribe(ctx, SubjectFields, handler)
}

// SubscribeDrawingEvents delivers the drawn and cleared events of one map
// session.
func (s *Subscriber) SubscribeDrawingEvents(ctx context.Context, sessionID string, handler func(ctx context.Context, subject string, data []byte) error) error {
	if sessionID == "" {
		return fmt.Errorf("subscribe drawing events: session id is required")
	}
	return s.subscribe(ctx, DrawingSubject(sessionID), handler)
}

func (s *Subscriber) subscribe(ctx context.Context, subject string, handler Handler) error {
	sub, err := s.js.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(ctx, msg.Subject, msg.Data); err != nil {
			slog.Debug("event handler failed", "subject", msg.Subject, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.DeliverNew(),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
		_ = sub.Unsubscribe()
	}()
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (s *Subscriber) IsConnected() bool {
	return s.conn.IsConnected()
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	s.mu.Lock()
	for sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	s.subs = make(map[*nats.Subscription]struct{})
	s.mu.Unlock()
	_ = s.conn.Drain()
}
