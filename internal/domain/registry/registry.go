// Package registry holds the static level/module configuration consumed by the
// progress engine. Modules group levels; each level may declare a single
// prerequisite level (depends_on) and a minimum score required for automatic
// unlock. The registry is read-only after construction.
package registry

import (
	"strings"

	"github.com/versant-edu/versant-hub/internal/domain/shared"
)

// DefaultUnlockThreshold is the minimum score applied when a level does not
// declare its own threshold. A threshold of 0 means the level is always
// unlocked once its prerequisite is attempted.
const DefaultUnlockThreshold = 60

// Module represents a named skill area grouping levels.
type Module struct {
	ID   string `json:"module_id"`
	Name string `json:"name"`
}

// Level is the smallest unlockable unit of content within a module.
type Level struct {
	ID       string `json:"level_id"`
	ModuleID string `json:"module_id"`
	Name     string `json:"name"`

	// DependsOn is the prerequisite level ID; empty for root levels.
	DependsOn string `json:"depends_on,omitempty"`

	// UnlockThreshold is the minimum score (0-100) on the prerequisite
	// required for automatic unlock.
	UnlockThreshold int `json:"unlock_threshold"`
}

// IsRoot reports whether the level has no prerequisite.
func (l Level) IsRoot() bool {
	return l.DependsOn == ""
}

// Registry provides lookups over the declared modules and levels.
type Registry struct {
	modules    []Module
	levels     map[string]Level
	byModule   map[string][]Level
	dependents map[string][]Level
	freeSet    map[string]bool
}

// NewRegistry builds a Registry from the given modules and levels.
// Level order within a module is preserved as declared. freeModules lists
// modules whose root levels are unlocked unconditionally.
func NewRegistry(modules []Module, levels []Level, freeModules []string) *Registry {
	r := &Registry{
		modules:    make([]Module, len(modules)),
		levels:     make(map[string]Level, len(levels)),
		byModule:   make(map[string][]Level),
		dependents: make(map[string][]Level),
		freeSet:    make(map[string]bool, len(freeModules)),
	}
	copy(r.modules, modules)

	for _, lvl := range levels {
		r.levels[lvl.ID] = lvl
		r.byModule[lvl.ModuleID] = append(r.byModule[lvl.ModuleID], lvl)
		if lvl.DependsOn != "" {
			r.dependents[lvl.DependsOn] = append(r.dependents[lvl.DependsOn], lvl)
		}
	}

	for _, m := range freeModules {
		r.freeSet[m] = true
	}

	return r
}

// Modules returns the declared modules in declaration order.
func (r *Registry) Modules() []Module {
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// Level returns the level with the given ID.
func (r *Registry) Level(levelID string) (Level, error) {
	lvl, ok := r.levels[levelID]
	if !ok {
		return Level{}, shared.ErrLevelNotFound
	}
	return lvl, nil
}

// LevelsByModule returns every level belonging to the module, in declared
// order. An empty result signals a configuration gap for admin actions.
func (r *Registry) LevelsByModule(moduleID string) []Level {
	levels := r.byModule[moduleID]
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

// DependentsOf returns every level that declares the given level as its
// prerequisite. Multiple levels may depend on the same prerequisite.
func (r *Registry) DependentsOf(levelID string) []Level {
	deps := r.dependents[levelID]
	out := make([]Level, len(deps))
	copy(out, deps)
	return out
}

// AllLevels returns every declared level.
func (r *Registry) AllLevels() []Level {
	out := make([]Level, 0, len(r.levels))
	for _, m := range r.modules {
		out = append(out, r.byModule[m.ID]...)
	}
	return out
}

// IsFreeModule reports whether the module's root levels are unlocked
// unconditionally.
func (r *Registry) IsFreeModule(moduleID string) bool {
	return r.freeSet[moduleID]
}

// ModuleOfLevel resolves the owning module for a level ID. When the level is
// not declared, the module is inferred by splitting the level ID on the first
// underscore ("GRAMMAR_L2" -> "GRAMMAR"), matching how legacy attempt data
// encoded module membership.
func (r *Registry) ModuleOfLevel(levelID string) string {
	if lvl, ok := r.levels[levelID]; ok {
		return lvl.ModuleID
	}
	return InferModuleID(levelID)
}

// InferModuleID derives a module ID from a level ID by taking the prefix
// before the first underscore.
func InferModuleID(levelID string) string {
	if idx := strings.Index(levelID, "_"); idx > 0 {
		return levelID[:idx]
	}
	return levelID
}

// CurrentUnlockedLevel walks the module's dependency chain from its root and
// returns the highest level present in the authorized set. The second return
// is false when no level in the module is authorized.
func (r *Registry) CurrentUnlockedLevel(moduleID string, authorized map[string]bool) (Level, bool) {
	var current Level
	found := false
	for _, lvl := range r.byModule[moduleID] {
		if authorized[lvl.ID] {
			current = lvl
			found = true
		}
	}
	return current, found
}

// NextCandidateLevel returns the first level depending on the module's
// current unlocked level that is not yet authorized. When nothing in the
// module is authorized, the module's root level is the candidate.
func (r *Registry) NextCandidateLevel(moduleID string, authorized map[string]bool) (Level, bool) {
	current, ok := r.CurrentUnlockedLevel(moduleID, authorized)
	if !ok {
		for _, lvl := range r.byModule[moduleID] {
			if lvl.IsRoot() && !authorized[lvl.ID] {
				return lvl, true
			}
		}
		return Level{}, false
	}

	for _, dep := range r.dependents[current.ID] {
		if dep.ModuleID == moduleID && !authorized[dep.ID] {
			return dep, true
		}
	}
	return Level{}, false
}
