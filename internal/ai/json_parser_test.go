package ai

import "testing"

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestParseDirect(t *testing.T) {
	result := Parse[sample](`{"name": "a", "count": 2}`, "test")
	if !result.Success {
		t.Fatalf("expected success, got error: %s", result.Error)
	}
	if result.Data.Name != "a" || result.Data.Count != 2 {
		t.Errorf("unexpected data: %+v", result.Data)
	}
}

func TestParseCodeFences(t *testing.T) {
	inputs := []string{
		"```json\n{\"name\": \"a\", \"count\": 1}\n```",
		"```\n{\"name\": \"a\", \"count\": 1}\n```",
		"`{\"name\": \"a\", \"count\": 1}`",
	}
	for _, input := range inputs {
		result := Parse[sample](input, "test")
		if !result.Success {
			t.Errorf("expected %q to parse, got: %s", input, result.Error)
		}
	}
}

func TestParseCleanup(t *testing.T) {
	// Trailing comma, unquoted key, comment.
	input := `{
		name: "a", // the name
		"count": 3,
	}`
	result := Parse[sample](input, "test")
	if !result.Success {
		t.Fatalf("expected cleanup to succeed, got: %s", result.Error)
	}
	if result.Data.Name != "a" || result.Data.Count != 3 {
		t.Errorf("unexpected data: %+v", result.Data)
	}
}

func TestParseMixedContent(t *testing.T) {
	input := `Sure, here is the result you asked for:

{"name": "a", "count": 5}

Let me know if you need anything else.`
	result := Parse[sample](input, "test")
	if !result.Success {
		t.Fatalf("expected extraction to succeed, got: %s", result.Error)
	}
	if result.Data.Count != 5 {
		t.Errorf("unexpected data: %+v", result.Data)
	}
}

func TestParseArray(t *testing.T) {
	result := Parse[[]sample](`[{"name": "a", "count": 1}, {"name": "b", "count": 2}]`, "test")
	if !result.Success {
		t.Fatalf("expected success, got: %s", result.Error)
	}
	if len(result.Data) != 2 {
		t.Errorf("expected 2 elements, got %d", len(result.Data))
	}
}

func TestParseFailure(t *testing.T) {
	result := Parse[sample]("this is not json at all", "solution")
	if result.Success {
		t.Error("expected failure")
	}
	if result.Error == "" || result.OriginalText == "" {
		t.Errorf("expected error details, got %+v", result)
	}
}

func TestParseEmpty(t *testing.T) {
	result := Parse[sample]("   \n ", "test")
	if result.Success {
		t.Error("expected failure for empty input")
	}
}
