package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/triageops/triage/internal/types"
)

// AppendMessage appends a message to an issue's transcript. The transcript
// is append-only; ordering comes from the AUTOINCREMENT seq column rather
// than timestamps, which can collide within a millisecond.
func (s *SQLiteStorage) AppendMessage(ctx context.Context, msg *types.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid message: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, issue_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.IssueID, msg.Role, msg.Content, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// ListMessages returns an issue's full transcript in append order
func (s *SQLiteStorage) ListMessages(ctx context.Context, issueID string) ([]*types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, issue_id, role, content, created_at
		FROM messages WHERE issue_id = ? ORDER BY seq
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*types.Message
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(&msg.ID, &msg.IssueID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}
