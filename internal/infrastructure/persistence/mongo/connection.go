// Package mongo implements the document-store persistence layer for Versant
// Hub. Student documents are schema-on-read: repositories tolerate missing
// progress fields and both stored shapes of authorized_levels.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	CollectionStudents = "students"
	CollectionAttempts = "test_attempts"
	CollectionResults  = "test_results"
	CollectionEvents   = "progress_events"
	CollectionExams    = "online_exams"
)

// Config holds MongoDB connection settings.
type Config struct {
	// URI is the connection string, e.g. "mongodb://localhost:27017".
	URI string

	// Database is the database name.
	Database string

	// ConnectTimeout bounds the initial connect + ping.
	ConnectTimeout time.Duration

	// QueryTimeout bounds each repository call.
	QueryTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "versant",
		ConnectTimeout: 10 * time.Second,
		QueryTimeout:   10 * time.Second,
	}
}

// Connection wraps the Mongo client and database handle shared by the
// repositories.
type Connection struct {
	client       *mongo.Client
	db           *mongo.Database
	queryTimeout time.Duration
}

// Connect establishes and verifies a MongoDB connection.
func Connect(ctx context.Context, cfg Config) (*Connection, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Connection{
		client:       client,
		db:           client.Database(cfg.Database),
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

// Close disconnects the client.
func (c *Connection) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// Ping verifies the connection, for health checks.
func (c *Connection) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Collection returns a collection handle.
func (c *Connection) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// queryContext derives a per-call timeout context.
func (c *Connection) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.queryTimeout)
}
