package student

import (
	"time"
)

// Stored authorized_levels arrays hold two shapes side by side: bare level-ID
// strings written by the legacy codebase, and structured entry documents
// written by the current one. Both must stay readable indefinitely - no
// migration is assumed to have completed. Normalization happens at every read
// boundary; writes always use the structured shape for new entries while
// legacy entries round-trip in their original form.

// NormalizeAuthorizedLevels converts a raw authorized_levels array into
// canonical entries. Strings become legacy entries carrying only the level
// ID; maps are decoded field by field. Unrecognized elements are skipped.
func NormalizeAuthorizedLevels(raw []any) []AuthorizationEntry {
	entries := make([]AuthorizationEntry, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			if v == "" {
				continue
			}
			entries = append(entries, AuthorizationEntry{LevelID: v, Legacy: true})
		case map[string]any:
			entry := decodeEntryMap(v)
			if entry.LevelID != "" {
				entries = append(entries, entry)
			}
		}
	}
	return entries
}

// AuthorizedSetFromRaw is the pure read-side projection: raw array in, set of
// level-ID strings out. Membership checks never depend on the stored shape.
func AuthorizedSetFromRaw(raw []any) map[string]bool {
	set := make(map[string]bool, len(raw))
	for _, e := range NormalizeAuthorizedLevels(raw) {
		set[e.LevelID] = true
	}
	return set
}

// RawAuthorizedLevels converts canonical entries back into the stored array:
// legacy entries as bare strings, everything else as structured documents.
func RawAuthorizedLevels(entries []AuthorizationEntry) []any {
	raw := make([]any, 0, len(entries))
	for _, e := range entries {
		if e.Legacy {
			raw = append(raw, e.LevelID)
			continue
		}
		raw = append(raw, encodeEntryMap(e))
	}
	return raw
}

func decodeEntryMap(m map[string]any) AuthorizationEntry {
	entry := AuthorizationEntry{
		LevelID:          stringField(m, "level_id"),
		AuthorizedBy:     AuthorizedBy(stringField(m, "authorized_by")),
		AuthorizedByUser: stringField(m, "authorized_by_user"),
		TestID:           stringField(m, "test_id"),
		Reason:           stringField(m, "reason"),
	}

	if b, ok := m["is_admin_override"].(bool); ok {
		entry.IsAdminOverride = b
	}
	if t, ok := m["authorized_at"].(time.Time); ok {
		entry.AuthorizedAt = t
	}
	if score, ok := numericField(m, "score_unlocked"); ok {
		entry.ScoreUnlocked = &score
	}

	return entry
}

func encodeEntryMap(e AuthorizationEntry) map[string]any {
	m := map[string]any{
		"level_id":          e.LevelID,
		"authorized_by":     string(e.AuthorizedBy),
		"authorized_at":     e.AuthorizedAt,
		"is_admin_override": e.IsAdminOverride,
	}
	if e.ScoreUnlocked != nil {
		m["score_unlocked"] = *e.ScoreUnlocked
	}
	if e.AuthorizedByUser != "" {
		m["authorized_by_user"] = e.AuthorizedByUser
	}
	if e.TestID != "" {
		m["test_id"] = e.TestID
	}
	if e.Reason != "" {
		m["reason"] = e.Reason
	}
	return m
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func numericField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
