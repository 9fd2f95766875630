package steps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/stepwise/internal/step"
)

const settingsYAML = `
name: Profile basics
url: https://app.example.test/settings
steps:
  - title: Welcome
    action: noop
    comment: We'll update your profile.
  - title: Open the menu
    action: hover
    target: framework:user-menu
    in_navigation: true
  - title: Enter your email
    action: formfill
    target: "#email"
    expected: /^[^@]+@example\.test$/i
    hint: Use your work address.
    strict: true
  - title: Save
    action: click
    target: Save
    skippable: true
`

func TestParse_YAMLDocument(t *testing.T) {
	seq, err := Parse([]byte(settingsYAML), "yaml")
	require.NoError(t, err)

	want := &Sequence{
		Name: "Profile basics",
		URL:  "https://app.example.test/settings",
		Steps: []step.Descriptor{
			{Title: "Welcome", Action: step.ActionNoop, Comment: "We'll update your profile."},
			{Title: "Open the menu", Action: step.ActionHover, Target: "framework:user-menu", InNavigation: true},
			{Title: "Enter your email", Action: step.ActionFormFill, Target: "#email", Expected: `/^[^@]+@example\.test$/i`, Hint: "Use your work address.", Strict: true},
			{Title: "Save", Action: step.ActionClick, Target: "Save", Skippable: true},
		},
	}
	if diff := cmp.Diff(want, seq); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Welcome", "Open the menu", "Enter your email", "Save"}, seq.Titles())
}

func TestParse_BareLists(t *testing.T) {
	want := []step.Descriptor{{Action: step.ActionClick, Target: "#go"}}

	seq, err := Parse([]byte("- action: click\n  target: \"#go\"\n"), "yaml")
	require.NoError(t, err)
	if diff := cmp.Diff(want, seq.Steps); diff != "" {
		t.Errorf("YAML list mismatch (-want +got):\n%s", diff)
	}

	seq, err = Parse([]byte(`[{"action":"click","target":"#go"}]`), "json")
	require.NoError(t, err)
	if diff := cmp.Diff(want, seq.Steps); diff != "" {
		t.Errorf("JSON list mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_JSONDocument(t *testing.T) {
	seq, err := Parse([]byte(`{"name":"n","steps":[{"action":"formfill","target":"#q","expected":"hello"}]}`), "json")
	require.NoError(t, err)
	assert.Equal(t, "n", seq.Name)
	assert.Equal(t, "hello", seq.Steps[0].Expected)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		steps    []step.Descriptor
		problems []string
	}{
		{
			name:     "empty",
			problems: []string{"no steps defined"},
		},
		{
			name:     "unknown action",
			steps:    []step.Descriptor{{Action: "drag", Target: "#x"}},
			problems: []string{`step 1 (drag #x): unknown action "drag"`},
		},
		{
			name:     "missing target",
			steps:    []step.Descriptor{{ID: "go", Action: step.ActionClick}},
			problems: []string{"step 1 (go): target is required"},
		},
		{
			name:  "bad pattern and misplaced expected",
			steps: []step.Descriptor{{ID: "q", Action: step.ActionFormFill, Target: "#q", Expected: "/[/", Strict: true}, {ID: "c", Action: step.ActionClick, Target: "#c", Expected: "x"}},
			problems: []string{
				`step 1 (q): invalid expected pattern "/[/"`,
				"step 2 (c): expected and strict only apply to formfill",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Sequence{Steps: tt.steps}).Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Len(t, verr.Problems, len(tt.problems))
			for i, want := range tt.problems {
				assert.Contains(t, verr.Problems[i], want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte("steps: [unclosed"), "yaml")
	assert.ErrorContains(t, err, "failed to decode YAML")

	_, err = Parse([]byte("   "), "yaml")
	assert.ErrorContains(t, err, "empty")

	_, err = Parse([]byte("{"), "json")
	assert.ErrorContains(t, err, "failed to decode JSON")

	_, err = Parse([]byte("x"), "toml")
	assert.ErrorContains(t, err, "unsupported")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "tour.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(settingsYAML), 0o600))
	jsonPath := filepath.Join(dir, "tour.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`[{"action":"noop"}]`), 0o600))

	seq, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Len(t, seq.Steps, 4)

	seq, err = Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, step.ActionNoop, seq.Steps[0].Action)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read step file")
}

func TestLoad_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	require.NoError(t, os.WriteFile(filepath.Join(home, "tour.yaml"), []byte(settingsYAML), 0o600))

	seq, err := Load("~/tour.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Profile basics", seq.Name)
}
