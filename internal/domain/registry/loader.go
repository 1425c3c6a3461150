package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// registryFile is the on-disk shape of a registry declaration.
type registryFile struct {
	Modules     []moduleDecl `json:"modules"`
	FreeModules []string     `json:"free_modules"`
}

type moduleDecl struct {
	ModuleID string      `json:"module_id"`
	Name     string      `json:"name"`
	Levels   []levelDecl `json:"levels"`
}

type levelDecl struct {
	LevelID string `json:"level_id"`
	Name    string `json:"name"`

	DependsOn string `json:"depends_on"`

	// Pointer so an absent threshold can fall back to the default while an
	// explicit 0 stays 0 (always unlocked).
	UnlockThreshold *int `json:"unlock_threshold"`
}

// LoadFromFile reads a registry declaration from a JSON file.
func LoadFromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}

	return buildFromDecl(file), nil
}

func buildFromDecl(file registryFile) *Registry {
	modules := make([]Module, 0, len(file.Modules))
	var levels []Level

	for _, m := range file.Modules {
		modules = append(modules, Module{ID: m.ModuleID, Name: m.Name})
		for _, l := range m.Levels {
			threshold := DefaultUnlockThreshold
			if l.UnlockThreshold != nil {
				threshold = *l.UnlockThreshold
			}
			levels = append(levels, Level{
				ID:              l.LevelID,
				ModuleID:        m.ModuleID,
				Name:            l.Name,
				DependsOn:       l.DependsOn,
				UnlockThreshold: threshold,
			})
		}
	}

	return NewRegistry(modules, levels, file.FreeModules)
}

// VersantModuleIDs is the fixed module list the insight reports aggregate
// over, whether or not a student has attempted them.
var VersantModuleIDs = []string{
	"GRAMMAR", "VOCABULARY", "LISTENING", "SPEAKING", "READING", "WRITING",
}

// Default returns the built-in VERSANT level table: six skill modules with
// four chained levels each. Deployments override it via REGISTRY_PATH.
func Default() *Registry {
	names := map[string]string{
		"GRAMMAR":    "Grammar",
		"VOCABULARY": "Vocabulary",
		"LISTENING":  "Listening",
		"SPEAKING":   "Speaking",
		"READING":    "Reading",
		"WRITING":    "Writing",
	}

	modules := make([]Module, 0, len(VersantModuleIDs))
	var levels []Level

	for _, moduleID := range VersantModuleIDs {
		modules = append(modules, Module{ID: moduleID, Name: names[moduleID]})
		prev := ""
		for i := 1; i <= 4; i++ {
			levelID := fmt.Sprintf("%s_L%d", moduleID, i)
			levels = append(levels, Level{
				ID:              levelID,
				ModuleID:        moduleID,
				Name:            fmt.Sprintf("%s Level %d", names[moduleID], i),
				DependsOn:       prev,
				UnlockThreshold: DefaultUnlockThreshold,
			})
			prev = levelID
		}
	}

	// Grammar and vocabulary roots are open to every enrolled student.
	return NewRegistry(modules, levels, []string{"GRAMMAR", "VOCABULARY"})
}
