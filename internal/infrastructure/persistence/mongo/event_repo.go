package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/versant-edu/versant-hub/internal/domain/event"
)

// EventRepository implements event.Repository over the progress_events
// collection.
type EventRepository struct {
	conn *Connection
	col  *mongo.Collection
}

// NewEventRepository creates an EventRepository.
func NewEventRepository(conn *Connection) *EventRepository {
	return &EventRepository{
		conn: conn,
		col:  conn.Collection(CollectionEvents),
	}
}

// Append inserts one event.
func (r *EventRepository) Append(ctx context.Context, ev *event.ProgressEvent) error {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	if _, err := r.col.InsertOne(qctx, ev); err != nil {
		return fmt.Errorf("append progress event: %w", err)
	}
	return nil
}

// CountByTypeSince groups event counts by type since the cutoff.
func (r *EventRepository) CountByTypeSince(ctx context.Context, since time.Time) (map[event.Type]int64, error) {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"timestamp": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{"_id": "$event_type", "count": bson.M{"$sum": 1}}}},
	}

	cursor, err := r.col.Aggregate(qctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count events by type: %w", err)
	}
	defer cursor.Close(qctx)

	counts := make(map[event.Type]int64)
	for cursor.Next(qctx) {
		var row struct {
			Type  string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			continue
		}
		counts[event.Type(row.Type)] = row.Count
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("count events by type: %w", err)
	}
	return counts, nil
}

// RecentErrors returns up to limit error events, most recent first.
func (r *EventRepository) RecentErrors(ctx context.Context, limit int) ([]event.ProgressEvent, error) {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.col.Find(qctx, bson.M{"event_type": event.TypeError}, opts)
	if err != nil {
		return nil, fmt.Errorf("list recent errors: %w", err)
	}
	defer cursor.Close(qctx)

	return decodeEvents(qctx, cursor)
}

// ListSince returns every event at or after the cutoff.
func (r *EventRepository) ListSince(ctx context.Context, since time.Time) ([]event.ProgressEvent, error) {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	cursor, err := r.col.Find(qctx, bson.M{"timestamp": bson.M{"$gte": since}})
	if err != nil {
		return nil, fmt.Errorf("list events since %s: %w", since.Format(time.RFC3339), err)
	}
	defer cursor.Close(qctx)

	return decodeEvents(qctx, cursor)
}

// DeleteBefore removes events older than the cutoff.
func (r *EventRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	qctx, cancel := r.conn.queryContext(ctx)
	defer cancel()

	res, err := r.col.DeleteMany(qctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("delete old events: %w", err)
	}
	return res.DeletedCount, nil
}

func decodeEvents(ctx context.Context, cursor *mongo.Cursor) ([]event.ProgressEvent, error) {
	var events []event.ProgressEvent
	for cursor.Next(ctx) {
		var ev event.ProgressEvent
		if err := cursor.Decode(&ev); err != nil {
			continue
		}
		if ev.Details != nil {
			// Nested detail values decode as driver types; flatten them so
			// JSON rendering sees plain Go values.
			plain := make(map[string]any, len(ev.Details))
			for k, v := range ev.Details {
				plain[k] = toPlain(v)
			}
			ev.Details = plain
		}
		events = append(events, ev)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return events, nil
}
