package server

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/triageops/triage/internal/types"
)

// slackEventPayload is the envelope Slack posts to the events endpoint.
// Only the fields this service reads are declared.
type slackEventPayload struct {
	Type      string      `json:"type"`
	Challenge string      `json:"challenge,omitempty"`
	Event     *slackEvent `json:"event,omitempty"`
}

type slackEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Channel string `json:"channel"`
	User    string `json:"user"`
	TS      string `json:"ts"`
}

var slackMentionPattern = regexp.MustCompile(`<@[A-Z0-9]+>`)

// handleSlackEvents is the Slack Events API endpoint. It answers the
// url_verification handshake and turns app_mention events of the form
// "@bot analyze <correlationId> <description>" into analyzed issues.
// Slack retries non-200 responses, so malformed mentions are acknowledged
// with 200 and only logged.
func (s *Server) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	var payload slackEventPayload
	if err := readJSONLoose(w, r, &payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid event payload: %v", err), http.StatusBadRequest)
		return
	}

	switch payload.Type {
	case "url_verification":
		s.metrics.SlackEvent("url_verification")
		writeJSON(w, http.StatusOK, map[string]string{"challenge": payload.Challenge})

	case "event_callback":
		if payload.Event == nil || payload.Event.Type != "app_mention" {
			s.metrics.SlackEvent("ignored")
			w.WriteHeader(http.StatusOK)
			return
		}
		s.metrics.SlackEvent("app_mention")
		s.handleSlackMention(w, r, payload.Event)

	default:
		s.metrics.SlackEvent("ignored")
		w.WriteHeader(http.StatusOK)
	}
}

// handleSlackMention parses an app_mention into an issue and dispatches it
func (s *Server) handleSlackMention(w http.ResponseWriter, r *http.Request, event *slackEvent) {
	correlationID, description, err := parseSlackCommand(event.Text)
	if err != nil {
		s.logger.Warn("ignoring slack mention", "channel", event.Channel, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	issue := &types.Issue{
		Title:         slackTitle(description),
		Description:   description,
		CorrelationID: correlationID,
		Source:        types.SourceSlack,
		Metadata: map[string]interface{}{
			"slack_channel": event.Channel,
			"slack_user":    event.User,
			"slack_ts":      event.TS,
		},
	}
	if err := s.createAndDispatch(r, issue, func(trackingID string) {
		writeJSON(w, http.StatusOK, CreateIssueResponse{Issue: issue, TrackingID: trackingID})
	}); err != nil {
		s.logger.Error("slack issue creation failed", "channel", event.Channel, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// parseSlackCommand extracts the correlation ID and description from mention
// text like "<@U123ABC> analyze corr-42 checkout requests time out".
func parseSlackCommand(text string) (correlationID, description string, err error) {
	text = strings.TrimSpace(slackMentionPattern.ReplaceAllString(text, ""))

	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "analyze") {
		return "", "", fmt.Errorf("mention is not an analyze command: %q", text)
	}
	if len(fields) < 3 {
		return "", "", fmt.Errorf("analyze needs a correlation ID and a description")
	}

	correlationID = fields[1]
	description = strings.Join(fields[2:], " ")
	return correlationID, description, nil
}

// slackTitle derives an issue title from the description's first line,
// truncated to stay well under the store's title limit.
func slackTitle(description string) string {
	title := description
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)
	const maxTitle = 120
	if len(title) > maxTitle {
		title = title[:maxTitle] + "..."
	}
	return title
}
