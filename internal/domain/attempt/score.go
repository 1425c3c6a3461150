package attempt

import (
	"strconv"
)

// Attempt documents report scores under several field names and encodings
// accumulated over the life of the platform: plain numbers, numeric strings,
// and wrapper documents like {"value": 75}. Extraction is an ordered list of
// strategies tried in sequence, short-circuiting on the first success and
// defaulting to 0 when nothing parses. Keep every quirk in this file so the
// aggregation logic never sees them.

// ExtractFunc is one extraction strategy over a raw attempt document.
type ExtractFunc func(doc map[string]any) (float64, bool)

// scoreStrategies is the fallback chain, in priority order.
var scoreStrategies = []ExtractFunc{
	topLevelField("score"),
	topLevelField("percentage"),
	topLevelField("total_score"),
	topLevelField("marks_obtained"),
	nestedField("result", "score"),
}

// ExtractScore runs the fallback chain and returns 0 when no strategy
// produces a value. Callers treat 0 as "no score recorded"; a genuine 0%
// attempt is indistinguishable from missing data, which downstream averages
// inherit by excluding zero scores.
func ExtractScore(doc map[string]any) float64 {
	if doc == nil {
		return 0
	}
	for _, strategy := range scoreStrategies {
		if score, ok := strategy(doc); ok {
			return score
		}
	}
	return 0
}

func topLevelField(name string) ExtractFunc {
	return func(doc map[string]any) (float64, bool) {
		v, ok := doc[name]
		if !ok {
			return 0, false
		}
		return coerceNumber(v)
	}
}

func nestedField(outer, inner string) ExtractFunc {
	return func(doc map[string]any) (float64, bool) {
		nested, ok := doc[outer].(map[string]any)
		if !ok {
			return 0, false
		}
		v, ok := nested[inner]
		if !ok {
			return 0, false
		}
		return coerceNumber(v)
	}
}

// coerceNumber unwraps the numeric encodings seen in the attempt logs:
// native numbers, numeric strings, and {"value": n} wrapper documents.
func coerceNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f, true
		}
		return 0, false
	case map[string]any:
		if inner, ok := n["value"]; ok {
			return coerceNumber(inner)
		}
		return 0, false
	default:
		return 0, false
	}
}
