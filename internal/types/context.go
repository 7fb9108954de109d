package types

import "time"

// StackFrame is a single frame in a captured stack trace.
type StackFrame struct {
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
	Function   string `json:"function"`
	CodeLine   string `json:"code_line,omitempty"`
}

// StackTrace is the exception that triggered an issue, with its frames
// ordered innermost-first as the originating runtime reported them.
type StackTrace struct {
	ExceptionType    string       `json:"exception_type"`
	ExceptionMessage string       `json:"exception_message"`
	Frames           []StackFrame `json:"frames"`
}

// HTTPRequest is a snapshot of an HTTP request observed around the causative event.
type HTTPRequest struct {
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// HTTPResponse is a snapshot of an HTTP response observed around the causative event.
type HTTPResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// QueueEvent is a message-queue record associated with the causative event.
type QueueEvent struct {
	Topic     string            `json:"topic"`
	Partition int               `json:"partition"`
	Offset    int64             `json:"offset"`
	Key       string            `json:"key,omitempty"`
	Value     string            `json:"value"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// DataStoreError is a database error record associated with the causative event.
type DataStoreError struct {
	ErrorCode    string                 `json:"error_code"`
	ErrorMessage string                 `json:"error_message"`
	Query        string                 `json:"query,omitempty"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// CauseContext is the structured evidence bundle describing what triggered
// an issue. A value is immutable once attached to a tracking record: a
// re-gather produces a whole new value, it never patches fields in place.
type CauseContext struct {
	StackTrace      *StackTrace            `json:"stack_trace,omitempty"`
	HTTPRequests    []HTTPRequest          `json:"http_requests,omitempty"`
	HTTPResponses   []HTTPResponse         `json:"http_responses,omitempty"`
	QueueEvents     []QueueEvent           `json:"queue_events,omitempty"`
	DataStoreErrors []DataStoreError       `json:"data_store_errors,omitempty"`
	Logs            []string               `json:"logs,omitempty"`
	Extra           map[string]interface{} `json:"extra,omitempty"`
}

// SimilarIssue is a historically resolved issue ranked against the current one.
type SimilarIssue struct {
	IssueID         string    `json:"issue_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Resolution      string    `json:"resolution"`
	SimilarityScore float64   `json:"similarity_score"` // in [0, 1]
	ResolvedAt      time.Time `json:"resolved_at"`
}

// DeploymentEvent is a deployment that landed near the issue's time window.
type DeploymentEvent struct {
	Service    string    `json:"service"`
	Version    string    `json:"version"`
	DeployedAt time.Time `json:"deployed_at"`
}

// HistoryContext is the structured evidence bundle of similar past issues
// and related changes. Same immutability rule as CauseContext.
type HistoryContext struct {
	SimilarIssues    []SimilarIssue    `json:"similar_issues,omitempty"`
	CodeChanges      map[string]string `json:"code_changes,omitempty"` // file path → change summary
	DeploymentEvents []DeploymentEvent `json:"deployment_events,omitempty"`
}
