package ai

import "testing"

func TestDefaultBranchPredicate(t *testing.T) {
	tests := []struct {
		name       string
		completion string
		want       bool
	}{
		{"marker present", "NEED_MORE_INFO: which version is deployed?", true},
		{"marker mid-text", "I checked the trace.\nNEED_MORE_INFO\nPlease share logs.", true},
		{"trailing question", "The trace is incomplete.\nCould you share the request payload?", true},
		{"question then statement", "Is it v2? Actually never mind, the cause is clear.", false},
		{"plain analysis", "The root cause is a nil user object on the retry path.", false},
		{"trailing blank lines", "What changed in the last deploy?\n\n  \n", true},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultBranchPredicate(tt.completion); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
