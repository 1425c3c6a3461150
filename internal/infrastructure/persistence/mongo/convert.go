package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// toPlain recursively converts BSON decode results into plain Go values
// (map[string]any, []any, time.Time, string, numbers) so the domain's
// schema-tolerant normalization and score extraction never see driver types.
func toPlain(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = toPlain(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = toPlain(val)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = toPlain(item)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(t.T), 0).UTC()
	case primitive.ObjectID:
		return t.Hex()
	default:
		return v
	}
}

// toPlainMap converts a decoded document into a plain map.
func toPlainMap(doc bson.M) map[string]any {
	m, _ := toPlain(doc).(map[string]any)
	return m
}

// plainString extracts a string field from a plain map.
func plainString(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// plainTime extracts a time field from a plain map.
func plainTime(m map[string]any, key string) time.Time {
	if t, ok := m[key].(time.Time); ok {
		return t
	}
	return time.Time{}
}
