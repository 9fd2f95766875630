// Package steps loads authored step sequences from YAML or JSON files.
package steps

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/stepwise/internal/detect"
	"github.com/xkilldash9x/stepwise/internal/step"
)

// Sequence is an authored exercise.
type Sequence struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// URL is the page the exercise starts on. The command line may override it.
	URL   string            `json:"url,omitempty" yaml:"url,omitempty"`
	Steps []step.Descriptor `json:"steps" yaml:"steps"`
}

// ValidationError lists every problem found in a sequence.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid step sequence: %s", strings.Join(e.Problems, "; "))
}

// Load reads path, which may start with "~", and validates the result. Files ending in
// .json are decoded as JSON and anything else as YAML.
func Load(path string) (*Sequence, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand step file path %q: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read step file: %w", err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(expanded), ".json") {
		format = "json"
	}
	seq, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", expanded, err)
	}
	return seq, nil
}

// Parse decodes data in the given format ("yaml" or "json"). A bare list of steps is
// accepted as well as a document with a top-level "steps" key.
func Parse(data []byte, format string) (*Sequence, error) {
	var seq Sequence
	switch format {
	case "json":
		if err := decodeJSON(data, &seq); err != nil {
			return nil, err
		}
	case "yaml", "yml":
		if err := decodeYAML(data, &seq); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported step file format %q", format)
	}
	if err := seq.Validate(); err != nil {
		return nil, err
	}
	return &seq, nil
}

func decodeJSON(data []byte, seq *Sequence) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &seq.Steps); err != nil {
			return fmt.Errorf("failed to decode JSON steps: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(data, seq); err != nil {
		return fmt.Errorf("failed to decode JSON sequence: %w", err)
	}
	return nil
}

func decodeYAML(data []byte, seq *Sequence) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to decode YAML sequence: %w", err)
	}
	if len(root.Content) == 0 {
		return errors.New("step file is empty")
	}
	doc := root.Content[0]
	target := any(seq)
	if doc.Kind == yaml.SequenceNode {
		target = &seq.Steps
	}
	if err := doc.Decode(target); err != nil {
		return fmt.Errorf("failed to decode YAML sequence: %w", err)
	}
	return nil
}

// Validate checks every step and reports all problems at once.
func (s *Sequence) Validate() error {
	var problems []string
	if len(s.Steps) == 0 {
		problems = append(problems, "no steps defined")
	}
	for i, d := range s.Steps {
		at := fmt.Sprintf("step %d (%s)", i+1, d.Label())
		if !d.Action.Valid() {
			problems = append(problems, fmt.Sprintf("%s: unknown action %q", at, d.Action))
			continue
		}
		if d.Action != step.ActionNoop && strings.TrimSpace(d.Target) == "" {
			problems = append(problems, fmt.Sprintf("%s: target is required", at))
		}
		if d.Action != step.ActionFormFill && (d.Expected != "" || d.Strict) {
			problems = append(problems, fmt.Sprintf("%s: expected and strict only apply to formfill", at))
		}
		if _, err := detect.ParseExpected(d.Expected); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", at, err))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Titles returns the step titles, used to label progress checklists.
func (s *Sequence) Titles() []string {
	out := make([]string, len(s.Steps))
	for i, d := range s.Steps {
		out[i] = d.Title
	}
	return out
}
