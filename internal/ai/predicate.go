package ai

import "strings"

// NeedMoreInfoMarker is the token the analysis instruction asks the model to
// emit when it cannot proceed without an answer from the reporter.
const NeedMoreInfoMarker = "NEED_MORE_INFO"

// BranchPredicate decides, from the latest completion, whether the analysis
// needs input from the reporter before it can produce a solution.
type BranchPredicate func(completion string) bool

// DefaultBranchPredicate treats a completion as a question when it carries
// the NEED_MORE_INFO marker, or when its last non-empty line ends with a
// question mark.
func DefaultBranchPredicate(completion string) bool {
	if strings.Contains(completion, NeedMoreInfoMarker) {
		return true
	}

	lines := strings.Split(completion, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		return strings.HasSuffix(line, "?")
	}
	return false
}
