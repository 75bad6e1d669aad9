package store

import (
	"context"
	"fmt"
)

// Tasks

func (s *PostgresStore) InsertTask(ctx context.Context, task Task) error {
	status := task.Status
	if status == "" {
		status = "OPEN"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, owner_id, title, notes, status, priority, due_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, task.ID, task.OwnerID, task.Title, task.Notes, status, task.Priority, task.DueAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, ownerID, status string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, notes, status, priority, due_at, created_at, updated_at
		FROM tasks
		WHERE owner_id=$1 AND ($2='' OR status=$2)
		ORDER BY priority DESC, created_at ASC
	`, ownerID, status)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		var item Task
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Notes, &item.Status, &item.Priority, &item.DueAt, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task Task) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title=$3, notes=$4, status=$5, priority=$6, due_at=$7, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
	`, task.ID, task.OwnerID, task.Title, task.Notes, task.Status, task.Priority, task.DueAt)
	if err != nil {
		return false, fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update task rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID, ownerID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1 AND owner_id=$2`, taskID, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete task rows: %w", err)
	}
	return affected > 0, nil
}

// Habits

func (s *PostgresStore) InsertHabit(ctx context.Context, habit Habit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO habits (id, owner_id, name, days_mask)
		VALUES ($1, $2, $3, $4)
	`, habit.ID, habit.OwnerID, habit.Name, habit.Days)
	if err != nil {
		return fmt.Errorf("insert habit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHabits(ctx context.Context, ownerID string) ([]Habit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, name, days_mask, created_at
		FROM habits
		WHERE owner_id=$1
		ORDER BY created_at ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	items := make([]Habit, 0)
	for rows.Next() {
		var item Habit
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Name, &item.Days, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habits: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetHabit(ctx context.Context, habitID, ownerID string) (Habit, error) {
	var item Habit
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, days_mask, created_at
		FROM habits
		WHERE id=$1 AND owner_id=$2
	`, habitID, ownerID).Scan(&item.ID, &item.OwnerID, &item.Name, &item.Days, &item.CreatedAt)
	if err != nil {
		return Habit{}, err
	}
	return item, nil
}

// ToggleHabitEntry flips the completion state for one (habit, day) pair and
// reports whether the day ended up completed.
func (s *PostgresStore) ToggleHabitEntry(ctx context.Context, habitID, day string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM habit_entries WHERE habit_id=$1 AND day=$2
	`, habitID, day)
	if err != nil {
		return false, fmt.Errorf("delete habit entry: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete habit entry rows: %w", err)
	}
	if affected > 0 {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO habit_entries (habit_id, day)
		VALUES ($1, $2)
		ON CONFLICT (habit_id, day) DO NOTHING
	`, habitID, day); err != nil {
		return false, fmt.Errorf("insert habit entry: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListHabitEntries(ctx context.Context, habitID, fromDay, toDay string) ([]HabitEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT habit_id, day::text, completed_at
		FROM habit_entries
		WHERE habit_id=$1 AND day BETWEEN $2::date AND $3::date
		ORDER BY day ASC
	`, habitID, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("list habit entries: %w", err)
	}
	defer rows.Close()

	items := make([]HabitEntry, 0)
	for rows.Next() {
		var item HabitEntry
		if err := rows.Scan(&item.HabitID, &item.Day, &item.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan habit entry: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habit entries: %w", err)
	}
	return items, nil
}

// Goals

func (s *PostgresStore) InsertGoal(ctx context.Context, goal Goal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (id, owner_id, title, description, progress, target_date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, goal.ID, goal.OwnerID, goal.Title, goal.Description, goal.Progress, goal.TargetDate)
	if err != nil {
		return fmt.Errorf("insert goal: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGoal(ctx context.Context, goalID string) (Goal, error) {
	var item Goal
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, progress, target_date, created_at, updated_at
		FROM goals
		WHERE id=$1
	`, goalID).Scan(&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.Progress, &item.TargetDate, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Goal{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListGoals(ctx context.Context, ownerID string) ([]Goal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, description, progress, target_date, created_at, updated_at
		FROM goals
		WHERE owner_id=$1
		ORDER BY created_at ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	items := make([]Goal, 0)
	for rows.Next() {
		var item Goal
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.Progress, &item.TargetDate, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateGoalProgress(ctx context.Context, goalID, ownerID string, progress int) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE goals SET progress=$3, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
	`, goalID, ownerID, progress)
	if err != nil {
		return false, fmt.Errorf("update goal progress: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update goal progress rows: %w", err)
	}
	return affected > 0, nil
}

// Notes

func (s *PostgresStore) InsertNote(ctx context.Context, note Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, owner_id, title, body)
		VALUES ($1, $2, $3, $4)
	`, note.ID, note.OwnerID, note.Title, note.Body)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNote(ctx context.Context, noteID string) (Note, error) {
	var item Note
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, body, created_at, updated_at
		FROM notes
		WHERE id=$1
	`, noteID).Scan(&item.ID, &item.OwnerID, &item.Title, &item.Body, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Note{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListNotes(ctx context.Context, ownerID string) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, body, created_at, updated_at
		FROM notes
		WHERE owner_id=$1
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	items := make([]Note, 0)
	for rows.Next() {
		var item Note
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Body, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, note Note) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET title=$3, body=$4, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
	`, note.ID, note.OwnerID, note.Title, note.Body)
	if err != nil {
		return false, fmt.Errorf("update note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update note rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteNote(ctx context.Context, noteID, ownerID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id=$1 AND owner_id=$2`, noteID, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete note rows: %w", err)
	}
	return affected > 0, nil
}

// Resources

func (s *PostgresStore) InsertResource(ctx context.Context, resource Resource) error {
	kind := resource.Kind
	if kind == "" {
		kind = "link"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO resources (id, owner_id, title, url, kind, attachment_key)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	`, resource.ID, resource.OwnerID, resource.Title, resource.URL, kind, resource.AttachmentKey)
	if err != nil {
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetResource(ctx context.Context, resourceID string) (Resource, error) {
	var item Resource
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, url, kind, COALESCE(attachment_key, ''), created_at, updated_at
		FROM resources
		WHERE id=$1
	`, resourceID).Scan(&item.ID, &item.OwnerID, &item.Title, &item.URL, &item.Kind, &item.AttachmentKey, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Resource{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListResources(ctx context.Context, ownerID string) ([]Resource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, url, kind, COALESCE(attachment_key, ''), created_at, updated_at
		FROM resources
		WHERE owner_id=$1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	items := make([]Resource, 0)
	for rows.Next() {
		var item Resource
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Title, &item.URL, &item.Kind, &item.AttachmentKey, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) SetResourceAttachment(ctx context.Context, resourceID, ownerID, attachmentKey string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE resources SET attachment_key=$3, updated_at=NOW()
		WHERE id=$1 AND owner_id=$2
	`, resourceID, ownerID, attachmentKey)
	if err != nil {
		return false, fmt.Errorf("set resource attachment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set resource attachment rows: %w", err)
	}
	return affected > 0, nil
}

// Transactions

func (s *PostgresStore) InsertTransaction(ctx context.Context, txn Transaction) error {
	currency := txn.Currency
	if currency == "" {
		currency = "USD"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_id, amount_cents, currency, direction, category, description, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, txn.ID, txn.OwnerID, txn.AmountCents, currency, txn.Direction, txn.Category, txn.Description, txn.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, ownerID string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, amount_cents, currency, direction, category, description, occurred_at, created_at
		FROM transactions
		WHERE owner_id=$1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	items := make([]Transaction, 0)
	for rows.Next() {
		var item Transaction
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.AmountCents, &item.Currency, &item.Direction, &item.Category, &item.Description, &item.OccurredAt, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CategoryTotals(ctx context.Context, ownerID string) ([]CategoryTotal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, direction, COALESCE(SUM(amount_cents), 0)::bigint
		FROM transactions
		WHERE owner_id=$1
		GROUP BY category, direction
		ORDER BY category ASC, direction ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("category totals: %w", err)
	}
	defer rows.Close()

	items := make([]CategoryTotal, 0)
	for rows.Next() {
		var item CategoryTotal
		if err := rows.Scan(&item.Category, &item.Direction, &item.TotalCents); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category totals: %w", err)
	}
	return items, nil
}

// Learning paths

func (s *PostgresStore) InsertLearningPath(ctx context.Context, path LearningPath) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learning_paths (id, owner_id, title, description)
		VALUES ($1, $2, $3, $4)
	`, path.ID, path.OwnerID, path.Title, path.Description)
	if err != nil {
		return fmt.Errorf("insert learning path: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLearningPath(ctx context.Context, pathID string) (LearningPath, error) {
	var item LearningPath
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, description, created_at, updated_at
		FROM learning_paths
		WHERE id=$1
	`, pathID).Scan(&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return LearningPath{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListLearningPaths(ctx context.Context, ownerID string) ([]LearningPath, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, title, description, created_at, updated_at
		FROM learning_paths
		WHERE owner_id=$1
		ORDER BY created_at ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list learning paths: %w", err)
	}
	defer rows.Close()

	items := make([]LearningPath, 0)
	for rows.Next() {
		var item LearningPath
		if err := rows.Scan(&item.ID, &item.OwnerID, &item.Title, &item.Description, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan learning path: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learning paths: %w", err)
	}
	return items, nil
}
