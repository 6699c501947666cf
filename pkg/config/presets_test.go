package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePresets(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadPresets(t *testing.T) {
	t.Parallel()

	path := writePresets(t, `
presets:
  - name: Content Review
    stages:
      - name: Draft
      - name: Review
        requires_approval: true
      - name: Published
        is_terminal: true
    transitions:
      - from: Draft
        to: Review
        role: TASK_CREATOR
      - from: Review
        to: Published
        role: TASK_RECEIVER
`)

	presets, err := LoadPresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 1)

	preset := presets[0]
	assert.Equal(t, "Content Review", preset.Name)
	require.Len(t, preset.Stages, 3)
	assert.True(t, preset.Stages[1].RequiresApproval)
	assert.True(t, preset.Stages[2].IsTerminal)
	require.Len(t, preset.Transitions, 2)
	assert.Equal(t, "Draft", preset.Transitions[0].From)
	assert.Equal(t, "TASK_RECEIVER", preset.Transitions[1].Role)
}

func TestLoadPresets_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadPresets(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadPresets_InvalidYAML(t *testing.T) {
	t.Parallel()

	path := writePresets(t, "presets: [unclosed")

	_, err := LoadPresets(path)
	assert.Error(t, err)
}

func TestLoadPresets_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name: "missing preset name",
			content: `
presets:
  - stages:
      - name: Draft
`,
			errMsg: "preset name is required",
		},
		{
			name: "no stages",
			content: `
presets:
  - name: Empty
`,
			errMsg: "at least one stage is required",
		},
		{
			name: "duplicate stage names",
			content: `
presets:
  - name: Dup
    stages:
      - name: Draft
      - name: Draft
`,
			errMsg: "duplicate stage name",
		},
		{
			name: "transition to unknown stage",
			content: `
presets:
  - name: Dangling
    stages:
      - name: Draft
    transitions:
      - from: Draft
        to: Missing
        role: TASK_CREATOR
`,
			errMsg: "references an unknown stage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writePresets(t, tt.content)

			_, err := LoadPresets(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
