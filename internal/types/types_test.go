package types

import (
	"strings"
	"testing"
	"time"
)

func TestStatusIsValid(t *testing.T) {
	valid := []Status{
		StatusCreated, StatusAnalyzing, StatusWaitingForInput,
		StatusGeneratingSolution, StatusCompleted, StatusFailed,
	}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("expected %s to be valid", s)
		}
	}

	invalid := []Status{"", "open", "COMPLETED", "done"}
	for _, s := range invalid {
		if s.IsValid() {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusCreated, StatusAnalyzing, true},
		{StatusCreated, StatusFailed, true},
		{StatusCreated, StatusCompleted, false},
		{StatusAnalyzing, StatusWaitingForInput, true},
		{StatusAnalyzing, StatusGeneratingSolution, true},
		{StatusAnalyzing, StatusFailed, true},
		{StatusAnalyzing, StatusCompleted, false},
		{StatusWaitingForInput, StatusAnalyzing, true},
		{StatusWaitingForInput, StatusGeneratingSolution, false},
		{StatusWaitingForInput, StatusFailed, true},
		{StatusGeneratingSolution, StatusCompleted, true},
		{StatusGeneratingSolution, StatusAnalyzing, true},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusAnalyzing, false},
		{StatusFailed, StatusAnalyzing, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s → %s: got %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStatusIsTerminal(t *testing.T) {
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("completed and failed should be terminal")
	}
	for _, s := range []Status{StatusCreated, StatusAnalyzing, StatusWaitingForInput, StatusGeneratingSolution} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	if len(StatusCompleted.ValidTransitions()) != 0 {
		t.Error("completed should have no valid transitions")
	}
	if len(StatusFailed.ValidTransitions()) != 0 {
		t.Error("failed should have no valid transitions")
	}
}

func TestIssueValidate(t *testing.T) {
	issue := &Issue{
		Title:       "NPE in UserService",
		Description: "users get 500",
		Status:      StatusCreated,
		Source:      SourceAPI,
	}
	if err := issue.Validate(); err != nil {
		t.Errorf("expected valid issue, got: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Issue)
	}{
		{"empty title", func(i *Issue) { i.Title = "" }},
		{"title too long", func(i *Issue) { i.Title = strings.Repeat("x", 501) }},
		{"empty description", func(i *Issue) { i.Description = "" }},
		{"bad status", func(i *Issue) { i.Status = "open" }},
		{"bad source", func(i *Issue) { i.Source = "email" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := *issue
			tt.mutate(&bad)
			if err := bad.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestTrackingRecordClaimed(t *testing.T) {
	rec := &TrackingRecord{IssueID: "iss-1", Status: StatusCreated}
	if rec.Claimed() {
		t.Error("record with no worker ID should not be claimed")
	}
	rec.WorkerID = "worker-1"
	if !rec.Claimed() {
		t.Error("record with worker ID should be claimed")
	}
}

func TestMessageValidate(t *testing.T) {
	msg := &Message{IssueID: "iss-1", Role: RoleSystem, Content: "Gathering context information..."}
	if err := msg.Validate(); err != nil {
		t.Errorf("expected valid message, got: %v", err)
	}

	bad := &Message{IssueID: "iss-1", Role: "model", Content: "x"}
	if err := bad.Validate(); err == nil {
		t.Error("expected invalid role error")
	}
}

func TestSolutionMarkdown(t *testing.T) {
	sol := &Solution{
		RootCause:   "userRequest was nil",
		Explanation: "The request object is not initialized on the retry path.",
		Steps: []SolutionStep{
			{StepNumber: 1, Description: "Add a nil check", CodeChanges: map[string]string{"svc/user.go": "-return r.User.ID\n+if r == nil { ... }"}},
			{StepNumber: 2, Description: "Redeploy", Commands: []string{"make deploy"}},
		},
		References: []string{"ISSUE-456"},
	}

	md := sol.Markdown()
	for _, want := range []string{
		"# Solution", "## Root Cause", "userRequest was nil",
		"### Step 1: Add a nil check", "svc/user.go",
		"### Step 2: Redeploy", "make deploy",
		"## References", "- ISSUE-456",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestSolutionValidate(t *testing.T) {
	sol := &Solution{RootCause: "x", Steps: []SolutionStep{{StepNumber: 1}}}
	if err := sol.Validate(); err == nil {
		t.Error("expected error for step without description")
	}
	sol = &Solution{}
	if err := sol.Validate(); err == nil {
		t.Error("expected error for missing root cause")
	}
}

func TestCauseContextZeroValue(t *testing.T) {
	// Nullable-until-gathered fields must distinguish absent from empty.
	var cc CauseContext
	if cc.StackTrace != nil {
		t.Error("zero-value cause context should have nil stack trace")
	}
	cc.Logs = append(cc.Logs, "line")
	if len(cc.Logs) != 1 {
		t.Error("logs append failed")
	}
	_ = time.Now()
}
