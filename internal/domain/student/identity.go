package student

import (
	"strings"
)

// IdentitySet is the set of aliases a student's attempt documents may have
// been written under. Legacy collections recorded attempts inconsistently -
// sometimes by internal ID, sometimes by linked user ID, email, or roll
// number - so matching always runs against the whole alias set.
type IdentitySet struct {
	values map[string]bool
}

// NewIdentitySet builds an identity set from the given aliases, skipping
// empties. Matching is case-insensitive because emails in the attempt logs
// were stored with mixed casing.
func NewIdentitySet(aliases ...string) IdentitySet {
	values := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		values[strings.ToLower(a)] = true
	}
	return IdentitySet{values: values}
}

// Contains reports whether the value matches any known alias.
func (s IdentitySet) Contains(value string) bool {
	return s.values[strings.ToLower(strings.TrimSpace(value))]
}

// ContainsAny reports whether any of the values matches a known alias.
func (s IdentitySet) ContainsAny(values ...string) bool {
	for _, v := range values {
		if v != "" && s.Contains(v) {
			return true
		}
	}
	return false
}

// Values returns the aliases in the set.
func (s IdentitySet) Values() []string {
	out := make([]string, 0, len(s.values))
	for v := range s.values {
		out = append(out, v)
	}
	return out
}

// Size returns the number of distinct aliases.
func (s IdentitySet) Size() int {
	return len(s.values)
}

// Identities materializes every known alias for the student once.
func (s *Student) Identities() IdentitySet {
	return NewIdentitySet(s.ID, s.UserID, s.Email, s.RollNumber)
}
