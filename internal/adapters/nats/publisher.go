package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/fieldmap/internal/core/domain"
)

// Subjects. Drawing subjects are scoped by map session:
// fieldmap.drawing.<session>.drawn and fieldmap.drawing.<session>.cleared.
const (
	SubjectFieldCreated = "fieldmap.fields.created"
	SubjectFieldDeleted = "fieldmap.fields.deleted"
	SubjectFields       = "fieldmap.fields.>"
	subjectDrawingRoot  = "fieldmap.drawing."
)

// DrawingSubject returns the wildcard subject for one session's drawing events.
func DrawingSubject(sessionID string) string {
	return subjectDrawingRoot + sessionID + ".>"
}

// FieldDeletedEvent is the payload of SubjectFieldDeleted.
type FieldDeletedEvent struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := Connect(url)
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "FIELD_EVENTS",
			Subjects:  []string{SubjectFields},
			Retention: nats.InterestPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      "DRAWING_EVENTS",
			Subjects:  []string{subjectDrawingRoot + ">"},
			Retention: nats.InterestPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.MemoryStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

func (p *Publisher) PublishPolygonDrawn(ctx context.Context, sessionID string, ev *domain.PolygonDrawn) error {
	return p.publishJSON(ctx, subjectDrawingRoot+sessionID+".drawn", ev)
}

func (p *Publisher) PublishPolygonCleared(ctx context.Context, sessionID string, ev *domain.PolygonCleared) error {
	return p.publishJSON(ctx, subjectDrawingRoot+sessionID+".cleared", ev)
}

func (p *Publisher) PublishFieldCreated(ctx context.Context, field *domain.Field) error {
	return p.publishJSON(ctx, SubjectFieldCreated, field)
}

func (p *Publisher) PublishFieldDeleted(ctx context.Context, id string) error {
	return p.publishJSON(ctx, SubjectFieldDeleted, FieldDeletedEvent{ID: id, DeletedAt: time.Now().UTC()})
}

func (p *Publisher) publishJSON(ctx context.Context, subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, data, nats.Context(ctx))
	return err
}

// IsConnected reports whether the underlying connection is up.
func (p *Publisher) IsConnected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// Connect opens a NATS connection that keeps reconnecting.
func Connect(url string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return conn, nil
}
