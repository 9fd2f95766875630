// File: cmd/validate_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCmd(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		stepsFile := writeFile(t, "steps.yaml", twoSteps)
		out, err := executeCommand(t, nil, "validate", stepsFile)
		require.NoError(t, err)
		assert.Contains(t, out, "Save a draft: 2 steps are valid.")
		assert.Contains(t, out, "1. noop      Welcome")
		assert.Contains(t, out, "2. click     Save")
	})

	t.Run("json list falls back to the file name and target", func(t *testing.T) {
		stepsFile := writeFile(t, "steps.json", `[{"action": "hover", "target": "#menu"}]`)
		out, err := executeCommand(t, nil, "validate", stepsFile)
		require.NoError(t, err)
		assert.Contains(t, out, stepsFile+": 1 steps are valid.")
		assert.Contains(t, out, "#menu")
	})

	t.Run("invalid file", func(t *testing.T) {
		stepsFile := writeFile(t, "steps.yaml", "- action: click\n")
		_, err := executeCommand(t, nil, "validate", stepsFile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target is required")
	})

	t.Run("needs exactly one argument", func(t *testing.T) {
		_, err := executeCommand(t, nil, "validate")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "accepts 1 arg(s)")
	})
}
