package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TranscriptStore persists conversations and messages to PostgreSQL for
// long-term history. All methods are safe on a nil receiver so persistence
// stays optional.
type TranscriptStore struct {
	db *sql.DB
}

func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	if db == nil {
		return nil
	}
	return &TranscriptStore{db: db}
}

// EnsureConversation creates the conversation row if needed and returns its
// UUID.
func (s *TranscriptStore) EnsureConversation(ctx context.Context, sessionID string) (uuid.UUID, error) {
	if s == nil || s.db == nil {
		return uuid.Nil, nil
	}

	var existingID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE session_id = $1`,
		sessionID,
	).Scan(&existingID)
	if err == nil {
		s.db.ExecContext(ctx,
			`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
			time.Now(), existingID,
		)
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("conversation: failed to check existing: %w", err)
	}

	newID := uuid.New()
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, session_id, stage, message_count, started_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, newID, sessionID, string(StageGreeting), 0, now, now, now)
	if err != nil {
		// Another instance may have created it concurrently.
		if strings.Contains(err.Error(), "duplicate key") {
			return s.EnsureConversation(ctx, sessionID)
		}
		return uuid.Nil, fmt.Errorf("conversation: failed to create: %w", err)
	}
	return newID, nil
}

// AppendMessage persists one turn and bumps the conversation counters.
func (s *TranscriptStore) AppendMessage(ctx context.Context, sessionID string, msg ChatMessage) error {
	if s == nil || s.db == nil {
		return nil
	}

	if _, err := s.EnsureConversation(ctx, sessionID); err != nil {
		return err
	}

	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (
			id, session_id, role, content, created_at
		) VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), sessionID, msg.Role, msg.Content, timestamp)
	if err != nil {
		return fmt.Errorf("conversation: failed to insert message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET
			message_count = message_count + 1,
			last_message_at = $1,
			updated_at = $1
		WHERE session_id = $2
	`, timestamp, sessionID)
	if err != nil {
		return fmt.Errorf("conversation: failed to update counters: %w", err)
	}
	return nil
}

// UpdateStage records the current stage on the conversation row.
func (s *TranscriptStore) UpdateStage(ctx context.Context, sessionID string, stage Stage) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET stage = $1, updated_at = $2 WHERE session_id = $3
	`, string(stage), time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("conversation: failed to update stage: %w", err)
	}
	return nil
}
