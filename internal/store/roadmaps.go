package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func (s *PostgresStore) InsertRoadmap(ctx context.Context, roadmap Roadmap) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roadmaps (id, owner_id, title, description, original_roadmap_id, copied_from_chat)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, roadmap.ID, roadmap.OwnerID, roadmap.Title, roadmap.Description, roadmap.OriginalRoadmapID, roadmap.CopiedFromChat)
	if err != nil {
		return fmt.Errorf("insert roadmap: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRoadmap(ctx context.Context, roadmapID string) (Roadmap, error) {
	var item Roadmap
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, COALESCE(original_roadmap_id, ''), copied_from_chat, created_at, updated_at
		FROM roadmaps
		WHERE id=$1
	`, roadmapID).Scan(
		&item.ID,
		&item.OwnerID,
		&item.Title,
		&item.Description,
		&item.OriginalRoadmapID,
		&item.CopiedFromChat,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Roadmap{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListRoadmaps(ctx context.Context, ownerID string) ([]Roadmap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, description, COALESCE(original_roadmap_id, ''), copied_from_chat, created_at, updated_at
		FROM roadmaps
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list roadmaps: %w", err)
	}
	defer rows.Close()

	items := make([]Roadmap, 0)
	for rows.Next() {
		var item Roadmap
		if err := rows.Scan(
			&item.ID,
			&item.OwnerID,
			&item.Title,
			&item.Description,
			&item.OriginalRoadmapID,
			&item.CopiedFromChat,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan roadmap: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roadmaps: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateRoadmap(ctx context.Context, roadmapID, ownerID, title, description string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE roadmaps
		SET title=$3, description=$4, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
	`, roadmapID, ownerID, title, description)
	if err != nil {
		return false, fmt.Errorf("update roadmap: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update roadmap rows: %w", err)
	}
	return affected > 0, nil
}

// FindChatCopy returns the viewer's chat-originated copy of the given
// original, or nil when none exists. The partial unique index on
// (owner_id, original_roadmap_id) guarantees at most one row qualifies.
func (s *PostgresStore) FindChatCopy(ctx context.Context, ownerID, originalID string) (*Roadmap, error) {
	var item Roadmap
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, COALESCE(original_roadmap_id, ''), copied_from_chat, created_at, updated_at
		FROM roadmaps
		WHERE owner_id=$1 AND original_roadmap_id=$2 AND copied_from_chat
	`, ownerID, originalID).Scan(
		&item.ID,
		&item.OwnerID,
		&item.Title,
		&item.Description,
		&item.OriginalRoadmapID,
		&item.CopiedFromChat,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find chat copy: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) InsertRoadmapStep(ctx context.Context, step RoadmapStep) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roadmap_steps (id, roadmap_id, sort_order, title, body)
		VALUES ($1, $2, $3, $4, $5)
	`, step.ID, step.RoadmapID, step.SortOrder, step.Title, step.Body)
	if err != nil {
		return fmt.Errorf("insert roadmap step: %w", err)
	}
	for _, link := range step.Links {
		if err := s.InsertStepLink(ctx, link); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) InsertStepLink(ctx context.Context, link StepLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roadmap_step_links (id, step_id, target_kind, target_id)
		VALUES ($1, $2, $3, $4)
	`, link.ID, link.StepID, link.TargetKind, link.TargetID)
	if err != nil {
		return fmt.Errorf("insert step link: %w", err)
	}
	return nil
}

// ListRoadmapSteps returns a roadmap's steps in render order, links attached.
func (s *PostgresStore) ListRoadmapSteps(ctx context.Context, roadmapID string) ([]RoadmapStep, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, roadmap_id, sort_order, title, body, created_at
		FROM roadmap_steps
		WHERE roadmap_id=$1
		ORDER BY sort_order ASC
	`, roadmapID)
	if err != nil {
		return nil, fmt.Errorf("list roadmap steps: %w", err)
	}
	defer rows.Close()

	items := make([]RoadmapStep, 0)
	index := make(map[string]int)
	for rows.Next() {
		var item RoadmapStep
		if err := rows.Scan(&item.ID, &item.RoadmapID, &item.SortOrder, &item.Title, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan roadmap step: %w", err)
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roadmap steps: %w", err)
	}
	if len(items) == 0 {
		return items, nil
	}

	linkRows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.step_id, l.target_kind, l.target_id
		FROM roadmap_step_links l
		JOIN roadmap_steps st ON st.id = l.step_id
		WHERE st.roadmap_id=$1
		ORDER BY l.id ASC
	`, roadmapID)
	if err != nil {
		return nil, fmt.Errorf("list step links: %w", err)
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var link StepLink
		if err := linkRows.Scan(&link.ID, &link.StepID, &link.TargetKind, &link.TargetID); err != nil {
			return nil, fmt.Errorf("scan step link: %w", err)
		}
		if i, ok := index[link.StepID]; ok {
			items[i].Links = append(items[i].Links, link)
		}
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step links: %w", err)
	}
	return items, nil
}

// InsertRoadmapCopy materializes a viewer's copy atomically: the copy row,
// its steps, and their links land in one transaction. When a concurrent
// request already materialized a copy for the same (owner, original) pair the
// unique index absorbs the insert and the existing copy is returned with
// created=false.
func (s *PostgresStore) InsertRoadmapCopy(ctx context.Context, copy Roadmap, steps []RoadmapStep) (Roadmap, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Roadmap{}, false, fmt.Errorf("begin copy tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO roadmaps (id, owner_id, title, description, original_roadmap_id, copied_from_chat)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (owner_id, original_roadmap_id) WHERE copied_from_chat DO NOTHING
	`, copy.ID, copy.OwnerID, copy.Title, copy.Description, copy.OriginalRoadmapID)
	if err != nil {
		return Roadmap{}, false, fmt.Errorf("insert roadmap copy: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Roadmap{}, false, fmt.Errorf("insert roadmap copy rows: %w", err)
	}
	if affected == 0 {
		existing, err := s.FindChatCopy(ctx, copy.OwnerID, copy.OriginalRoadmapID)
		if err != nil {
			return Roadmap{}, false, err
		}
		if existing == nil {
			return Roadmap{}, false, sql.ErrNoRows
		}
		return *existing, false, nil
	}

	if err := insertStepsTx(ctx, tx, steps); err != nil {
		return Roadmap{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Roadmap{}, false, fmt.Errorf("commit copy tx: %w", err)
	}

	created, err := s.GetRoadmap(ctx, copy.ID)
	if err != nil {
		return Roadmap{}, false, err
	}
	return created, true, nil
}

// ReplaceRoadmapContent overwrites a copy's title, description, and full step
// set in one transaction, stamping updated_at to the original's timestamp so
// an unchanged original never re-triggers a sync.
func (s *PostgresStore) ReplaceRoadmapContent(ctx context.Context, roadmapID, title, description string, steps []RoadmapStep, stamp time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE roadmaps
		SET title=$2, description=$3, updated_at=$4
		WHERE id=$1
	`, roadmapID, title, description, stamp)
	if err != nil {
		return fmt.Errorf("sync roadmap fields: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sync roadmap rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	// Step links cascade with their steps.
	if _, err := tx.ExecContext(ctx, `DELETE FROM roadmap_steps WHERE roadmap_id=$1`, roadmapID); err != nil {
		return fmt.Errorf("clear roadmap steps: %w", err)
	}
	if err := insertStepsTx(ctx, tx, steps); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync tx: %w", err)
	}
	return nil
}

func insertStepsTx(ctx context.Context, tx *sql.Tx, steps []RoadmapStep) error {
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO roadmap_steps (id, roadmap_id, sort_order, title, body)
			VALUES ($1, $2, $3, $4, $5)
		`, step.ID, step.RoadmapID, step.SortOrder, step.Title, step.Body); err != nil {
			return fmt.Errorf("insert copied step: %w", err)
		}
		for _, link := range step.Links {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO roadmap_step_links (id, step_id, target_kind, target_id)
				VALUES ($1, $2, $3, $4)
			`, link.ID, link.StepID, link.TargetKind, link.TargetID); err != nil {
				return fmt.Errorf("insert copied step link: %w", err)
			}
		}
	}
	return nil
}
