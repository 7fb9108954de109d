package ai

import (
	"strings"

	"github.com/triageops/triage/internal/types"
)

// SolutionInstruction is the instruction that asks the model to synthesize
// a structured solution from the conversation so far.
const SolutionInstruction = `Based on the analysis above, produce the final solution as a JSON object with this shape:

{
  "root_cause": "one-sentence root cause",
  "explanation": "detailed explanation of why the issue occurs",
  "steps": [
    {
      "step_number": 1,
      "description": "what to do",
      "code_changes": {"path/to/file": "diff or replacement snippet"},
      "commands": ["commands to run, if any"]
    }
  ],
  "references": ["related issue IDs or documents"]
}

Respond with only the JSON object.`

// ParseSolution turns a solution completion into a Solution. Model output
// that survives none of the parsing strategies still yields a usable
// Solution built from the raw text, so a malformed completion never fails
// an otherwise successful analysis.
func ParseSolution(completion string) *types.Solution {
	result := Parse[types.Solution](completion, "solution")
	if result.Success && result.Data.RootCause != "" {
		sol := result.Data
		// Renumber steps the model left unnumbered.
		for i := range sol.Steps {
			if sol.Steps[i].StepNumber == 0 {
				sol.Steps[i].StepNumber = i + 1
			}
		}
		return &sol
	}

	return fallbackSolution(completion)
}

// fallbackSolution builds a solution from an unparseable completion. The
// first non-empty line becomes the root cause, the whole text the explanation.
func fallbackSolution(completion string) *types.Solution {
	rootCause := "See explanation"
	for _, line := range strings.Split(completion, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			rootCause = line
			break
		}
	}

	return &types.Solution{
		RootCause:   rootCause,
		Explanation: strings.TrimSpace(completion),
	}
}
