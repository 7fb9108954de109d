package types

import (
	"fmt"
	"strings"
)

// SolutionStep is one ordered step of a remediation plan.
type SolutionStep struct {
	StepNumber  int               `json:"step_number"`
	Description string            `json:"description"`
	CodeChanges map[string]string `json:"code_changes,omitempty"` // file path → diff text
	Commands    []string          `json:"commands,omitempty"`
}

// Solution is the structured remediation output of a completed analysis.
// Produced exactly once per successful run; a re-analysis replaces it wholesale.
type Solution struct {
	RootCause   string         `json:"root_cause"`
	Explanation string         `json:"explanation"`
	Steps       []SolutionStep `json:"steps,omitempty"`
	References  []string       `json:"references,omitempty"`
}

// Validate checks if the solution has valid field values
func (s *Solution) Validate() error {
	if s.RootCause == "" {
		return fmt.Errorf("root_cause is required")
	}
	for i, step := range s.Steps {
		if step.Description == "" {
			return fmt.Errorf("step %d: description is required", i+1)
		}
	}
	return nil
}

// Markdown renders the solution as the human-readable summary posted to the
// transcript when an analysis completes.
func (s *Solution) Markdown() string {
	var b strings.Builder

	b.WriteString("# Solution\n\n")
	b.WriteString("## Root Cause\n\n")
	b.WriteString(s.RootCause)
	b.WriteString("\n\n## Explanation\n\n")
	b.WriteString(s.Explanation)

	if len(s.Steps) > 0 {
		b.WriteString("\n\n## Steps\n")
		for _, step := range s.Steps {
			fmt.Fprintf(&b, "\n### Step %d: %s\n", step.StepNumber, step.Description)
			for path, diff := range step.CodeChanges {
				fmt.Fprintf(&b, "\n`%s`:\n```\n%s\n```\n", path, diff)
			}
			if len(step.Commands) > 0 {
				fmt.Fprintf(&b, "\nCommands:\n```\n%s\n```\n", strings.Join(step.Commands, "\n"))
			}
		}
	}

	if len(s.References) > 0 {
		b.WriteString("\n## References\n\n")
		for _, ref := range s.References {
			fmt.Fprintf(&b, "- %s\n", ref)
		}
	}

	return b.String()
}
