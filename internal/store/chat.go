package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertMessage(ctx context.Context, message ChatMessage) error {
	attachments := message.Attachments
	if attachments == "" {
		attachments = "[]"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, team_id, project_id, author_id, body, attachments_json)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6::jsonb)
	`, message.ID, message.TeamID, message.ProjectID, message.AuthorID, message.Body, attachments)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// InsertSharedMessage creates a chat message and its shared-item record in a
// single transaction. A failed shared-item insert rolls back the message, so
// no message ever exists without its share record.
func (s *PostgresStore) InsertSharedMessage(ctx context.Context, message ChatMessage, item ChatSharedItem) error {
	attachments := message.Attachments
	if attachments == "" {
		attachments = "[]"
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin share tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (id, team_id, project_id, author_id, body, attachments_json)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6::jsonb)
	`, message.ID, message.TeamID, message.ProjectID, message.AuthorID, message.Body, attachments); err != nil {
		return fmt.Errorf("insert shared message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO chat_shared_items (id, message_id, team_id, project_id, item_kind, item_id, shared_by)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
	`, item.ID, item.MessageID, item.TeamID, item.ProjectID, item.ItemKind, item.ItemID, item.SharedBy); err != nil {
		return fmt.Errorf("insert shared item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit share tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, teamID, projectID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.team_id, COALESCE(m.project_id, ''), m.author_id, u.display_name, m.body, COALESCE(m.attachments_json::text, '[]'), m.created_at
		FROM chat_messages m
		JOIN users u ON u.id = m.author_id
		WHERE m.team_id=$1 AND ($2='' OR m.project_id=$2)
		ORDER BY m.created_at DESC
		LIMIT $3
	`, teamID, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	items := make([]ChatMessage, 0)
	for rows.Next() {
		var item ChatMessage
		if err := rows.Scan(
			&item.ID,
			&item.TeamID,
			&item.ProjectID,
			&item.AuthorID,
			&item.AuthorName,
			&item.Body,
			&item.Attachments,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListSharedItems(ctx context.Context, teamID string) ([]ChatSharedItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, team_id, COALESCE(project_id, ''), item_kind, item_id, shared_by, created_at
		FROM chat_shared_items
		WHERE team_id=$1
		ORDER BY created_at DESC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list shared items: %w", err)
	}
	defer rows.Close()

	items := make([]ChatSharedItem, 0)
	for rows.Next() {
		var item ChatSharedItem
		if err := rows.Scan(
			&item.ID,
			&item.MessageID,
			&item.TeamID,
			&item.ProjectID,
			&item.ItemKind,
			&item.ItemID,
			&item.SharedBy,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan shared item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shared items: %w", err)
	}
	return items, nil
}

// IsItemSharedWithUser reports whether the item was shared into any team the
// user belongs to.
func (s *PostgresStore) IsItemSharedWithUser(ctx context.Context, itemKind, itemID, userID string) (bool, error) {
	var shared bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM chat_shared_items si
			JOIN team_memberships tm ON tm.team_id = si.team_id
			WHERE si.item_kind=$1 AND si.item_id=$2 AND tm.user_id=$3
		)
	`, itemKind, itemID, userID).Scan(&shared)
	if err != nil {
		return false, fmt.Errorf("check shared item access: %w", err)
	}
	return shared, nil
}

func (s *PostgresStore) MarkTeamRead(ctx context.Context, teamID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_reads (team_id, user_id, last_read_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (team_id, user_id) DO UPDATE SET last_read_at=NOW()
	`, teamID, userID)
	if err != nil {
		return fmt.Errorf("mark team read: %w", err)
	}
	return nil
}

// UnreadCounts returns, per team the user belongs to, the number of messages
// written by others since the user's last read marker.
func (s *PostgresStore) UnreadCounts(ctx context.Context, userID string) ([]UnreadCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tm.team_id, COUNT(m.id)::int
		FROM team_memberships tm
		LEFT JOIN chat_reads cr ON cr.team_id = tm.team_id AND cr.user_id = tm.user_id
		LEFT JOIN chat_messages m ON m.team_id = tm.team_id
			AND m.author_id <> tm.user_id
			AND m.created_at > COALESCE(cr.last_read_at, 'epoch'::timestamptz)
		WHERE tm.user_id=$1
		GROUP BY tm.team_id
		ORDER BY tm.team_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	defer rows.Close()

	items := make([]UnreadCount, 0)
	for rows.Next() {
		var item UnreadCount
		if err := rows.Scan(&item.TeamID, &item.Count); err != nil {
			return nil, fmt.Errorf("scan unread count: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unread counts: %w", err)
	}
	return items, nil
}
