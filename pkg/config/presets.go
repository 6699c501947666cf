// Package config provides configuration loading for workflow presets.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StagePreset is one stage in a preset definition.
type StagePreset struct {
	Name                string `yaml:"name"`
	IsTerminal          bool   `yaml:"is_terminal"`
	RequiresAttachments bool   `yaml:"requires_attachments"`
	RequiresApproval    bool   `yaml:"requires_approval"`
}

// TransitionPreset references stages by name; ids do not exist until the
// preset is materialized into a workflow.
type TransitionPreset struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
	Role string `yaml:"role"`
}

// WorkflowPreset is a ready-made lifecycle a tenant can seed a workflow
// from. Stage order is the listing order.
type WorkflowPreset struct {
	Name        string             `yaml:"name"`
	Stages      []StagePreset      `yaml:"stages"`
	Transitions []TransitionPreset `yaml:"transitions"`
}

// PresetFile is the structure of the presets YAML file.
type PresetFile struct {
	Presets []WorkflowPreset `yaml:"presets"`
}

// LoadPresets loads workflow presets from a YAML file.
func LoadPresets(filepath string) ([]WorkflowPreset, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file %s: %w", filepath, err)
	}

	var file PresetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets YAML: %w", err)
	}

	for _, preset := range file.Presets {
		if err := validatePreset(preset); err != nil {
			return nil, fmt.Errorf("preset %q: %w", preset.Name, err)
		}
	}

	return file.Presets, nil
}

func validatePreset(preset WorkflowPreset) error {
	if preset.Name == "" {
		return fmt.Errorf("preset name is required")
	}

	if len(preset.Stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}

	names := make(map[string]bool, len(preset.Stages))
	for _, stage := range preset.Stages {
		if stage.Name == "" {
			return fmt.Errorf("stage name is required")
		}

		if names[stage.Name] {
			return fmt.Errorf("duplicate stage name %q", stage.Name)
		}

		names[stage.Name] = true
	}

	for _, transition := range preset.Transitions {
		if !names[transition.From] || !names[transition.To] {
			return fmt.Errorf("transition %s -> %s references an unknown stage", transition.From, transition.To)
		}
	}

	return nil
}
