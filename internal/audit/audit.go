// Package audit records authentication events for later review.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event types
const (
	EventLogin        = "login"
	EventLoginFailed  = "login_failed"
	EventRegister     = "register"
	EventLogout       = "logout"
	EventSetup        = "setup"
	EventRoleChanged  = "role_changed"
	EventUserDeleted  = "user_deleted"
	EventRateLimited  = "rate_limited"
)

const defaultCollection = "auth_events"

// Event is one authentication-related occurrence
type Event struct {
	Type      string    `bson:"type" json:"type"`
	UserID    string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	ActorID   string    `bson:"actor_id,omitempty" json:"actor_id,omitempty"`
	ClientIP  string    `bson:"client_ip,omitempty" json:"client_ip,omitempty"`
	UserAgent string    `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	Detail    string    `bson:"detail,omitempty" json:"detail,omitempty"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Logger records auth events
type Logger interface {
	LogAuthEvent(ctx context.Context, event Event) error
	Close(ctx context.Context) error
}

// Nop discards every event
type Nop struct{}

func (Nop) LogAuthEvent(context.Context, Event) error { return nil }
func (Nop) Close(context.Context) error               { return nil }

// MongoLogger appends events to a MongoDB collection
type MongoLogger struct {
	client     *mongo.Client
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoLogger connects to uri and verifies the connection
func NewMongoLogger(ctx context.Context, uri, dbName string) (*MongoLogger, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &MongoLogger{
		client:     client,
		collection: client.Database(dbName).Collection(defaultCollection),
		now:        time.Now,
	}, nil
}

// LogAuthEvent inserts event, stamping it when no timestamp is set
func (m *MongoLogger) LogAuthEvent(ctx context.Context, event Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if event.Timestamp.IsZero() {
		event.Timestamp = m.now().UTC()
	}
	if _, err := m.collection.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}
	return nil
}

// Close disconnects from MongoDB
func (m *MongoLogger) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// Async wraps a Logger so that writes never block or fail the caller
type Async struct {
	inner  Logger
	log    zerolog.Logger
	events chan Event
	done   chan struct{}
}

// NewAsync starts a background writer with a bounded queue
func NewAsync(inner Logger, log zerolog.Logger, queue int) *Async {
	a := &Async{
		inner:  inner,
		log:    log,
		events: make(chan Event, queue),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for event := range a.events {
		if err := a.inner.LogAuthEvent(context.Background(), event); err != nil {
			a.log.Warn().Err(err).Str("event", event.Type).Msg("Failed to record auth event")
		}
	}
}

// LogAuthEvent queues event; it is dropped when the queue is full
func (a *Async) LogAuthEvent(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case a.events <- event:
	default:
		a.log.Warn().Str("event", event.Type).Msg("Auth event queue full, dropping event")
	}
	return nil
}

// Close drains the queue and closes the inner logger
func (a *Async) Close(ctx context.Context) error {
	close(a.events)
	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return a.inner.Close(ctx)
}
