package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"lifeboard/api/internal/search"
	"lifeboard/api/internal/store"
	"lifeboard/api/internal/util"
)

var taskStatuses = map[string]bool{
	"open": true, "doing": true, "done": true,
}

var transactionDirections = map[string]bool{
	"income": true, "expense": true,
}

func (s *Service) CreateTask(ctx context.Context, userID, title, notes, status string, priority int, dueAt *time.Time) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
	}
	if status == "" {
		status = "open"
	}
	if !taskStatuses[status] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be open, doing, or done")
	}
	task := store.Task{
		ID:       util.NewID("tsk"),
		OwnerID:  userID,
		Title:    title,
		Notes:    notes,
		Status:   status,
		Priority: priority,
		DueAt:    dueAt,
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, err
	}
	return map[string]any{"task": taskPayload(task)}, nil
}

func (s *Service) ListTasks(ctx context.Context, userID, status string) (map[string]any, error) {
	if status != "" && !taskStatuses[status] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be open, doing, or done")
	}
	tasks, err := s.store.ListTasks(ctx, userID, status)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		items = append(items, taskPayload(task))
	}
	return map[string]any{"tasks": items}, nil
}

func (s *Service) UpdateTask(ctx context.Context, taskID, userID, title, notes, status string, priority int, dueAt *time.Time) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
	}
	if !taskStatuses[status] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "status must be open, doing, or done")
	}
	task := store.Task{
		ID:       taskID,
		OwnerID:  userID,
		Title:    title,
		Notes:    notes,
		Status:   status,
		Priority: priority,
		DueAt:    dueAt,
	}
	ok, err := s.store.UpdateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Task not found")
	}
	return map[string]any{"task": taskPayload(task)}, nil
}

func (s *Service) DeleteTask(ctx context.Context, taskID, userID string) error {
	ok, err := s.store.DeleteTask(ctx, taskID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Task not found")
	}
	return nil
}

func (s *Service) CreateHabit(ctx context.Context, userID, name string, days int) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required")
	}
	if days <= 0 || days > 0x7f {
		days = 0x7f
	}
	habit := store.Habit{
		ID:      util.NewID("hab"),
		OwnerID: userID,
		Name:    name,
		Days:    days,
	}
	if err := s.store.InsertHabit(ctx, habit); err != nil {
		return nil, err
	}
	return map[string]any{"habit": habitPayload(habit)}, nil
}

func (s *Service) ListHabits(ctx context.Context, userID string) (map[string]any, error) {
	habits, err := s.store.ListHabits(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(habits))
	for _, habit := range habits {
		items = append(items, habitPayload(habit))
	}
	return map[string]any{"habits": items}, nil
}

// ToggleHabit flips the completion mark for a habit on a day. Days are
// YYYY-MM-DD strings in the user's local calendar.
func (s *Service) ToggleHabit(ctx context.Context, habitID, userID, day string) (map[string]any, error) {
	if _, err := time.Parse("2006-01-02", day); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "day must be YYYY-MM-DD")
	}
	if _, err := s.store.GetHabit(ctx, habitID, userID); err != nil {
		return nil, err
	}
	completed, err := s.store.ToggleHabitEntry(ctx, habitID, day)
	if err != nil {
		return nil, err
	}
	return map[string]any{"habitId": habitID, "day": day, "completed": completed}, nil
}

func (s *Service) ListHabitEntries(ctx context.Context, habitID, userID, fromDay, toDay string) (map[string]any, error) {
	if _, err := s.store.GetHabit(ctx, habitID, userID); err != nil {
		return nil, err
	}
	if fromDay == "" {
		fromDay = time.Now().AddDate(0, 0, -30).Format("2006-01-02")
	}
	if toDay == "" {
		toDay = time.Now().Format("2006-01-02")
	}
	entries, err := s.store.ListHabitEntries(ctx, habitID, fromDay, toDay)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		items = append(items, map[string]any{
			"day":         entry.Day,
			"completedAt": entry.CompletedAt,
		})
	}
	return map[string]any{"entries": items}, nil
}

func (s *Service) CreateGoal(ctx context.Context, userID, title, description string, targetDate *time.Time) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
	}
	goal := store.Goal{
		ID:          util.NewID("gol"),
		OwnerID:     userID,
		Title:       title,
		Description: description,
		TargetDate:  targetDate,
	}
	if err := s.store.InsertGoal(ctx, goal); err != nil {
		return nil, err
	}
	return map[string]any{"goal": goalPayload(goal)}, nil
}

func (s *Service) ListGoals(ctx context.Context, userID string) (map[string]any, error) {
	goals, err := s.store.ListGoals(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(goals))
	for _, goal := range goals {
		items = append(items, goalPayload(goal))
	}
	return map[string]any{"goals": items}, nil
}

func (s *Service) UpdateGoalProgress(ctx context.Context, goalID, userID string, progress int) (map[string]any, error) {
	if progress < 0 || progress > 100 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "progress must be between 0 and 100")
	}
	ok, err := s.store.UpdateGoalProgress(ctx, goalID, userID, progress)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Goal not found")
	}
	goal, err := s.store.GetGoal(ctx, goalID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"goal": goalPayload(goal)}, nil
}

func (s *Service) CreateNote(ctx context.Context, userID, title, body string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
	}
	note := store.Note{
		ID:      util.NewID("nte"),
		OwnerID: userID,
		Title:   title,
		Body:    body,
	}
	if err := s.store.InsertNote(ctx, note); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexNote(search.NoteRecord{ID: note.ID, Title: note.Title, Body: note.Body, OwnerID: userID})
	}
	return map[string]any{"note": notePayload(note)}, nil
}

func (s *Service) ListNotes(ctx context.Context, userID string) (map[string]any, error) {
	notes, err := s.store.ListNotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(notes))
	for _, note := range notes {
		items = append(items, notePayload(note))
	}
	return map[string]any{"notes": items}, nil
}

func (s *Service) UpdateNote(ctx context.Context, noteID, userID, title, body string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
	}
	note := store.Note{ID: noteID, OwnerID: userID, Title: title, Body: body}
	ok, err := s.store.UpdateNote(ctx, note)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Note not found")
	}
	if s.search != nil {
		s.search.IndexNote(search.NoteRecord{ID: noteID, Title: title, Body: body, OwnerID: userID})
	}
	return map[string]any{"note": notePayload(note)}, nil
}

func (s *Service) DeleteNote(ctx context.Context, noteID, userID string) error {
	ok, err := s.store.DeleteNote(ctx, noteID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Note not found")
	}
	if s.search != nil {
		s.search.DeleteNote(noteID)
	}
	return nil
}

func (s *Service) CreateResource(ctx context.Context, userID, title, url, kind string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
	}
	if kind == "" {
		kind = "link"
	}
	resource := store.Resource{
		ID:      util.NewID("res"),
		OwnerID: userID,
		Title:   title,
		URL:     strings.TrimSpace(url),
		Kind:    kind,
	}
	if err := s.store.InsertResource(ctx, resource); err != nil {
		return nil, err
	}
	if s.search != nil {
		s.search.IndexResource(search.ResourceRecord{ID: resource.ID, Title: resource.Title, URL: resource.URL, OwnerID: userID})
	}
	return map[string]any{"resource": resourcePayload(resource, "")}, nil
}

func (s *Service) ListResources(ctx context.Context, userID string) (map[string]any, error) {
	resources, err := s.store.ListResources(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(resources))
	for _, resource := range resources {
		downloadURL := ""
		if resource.AttachmentKey != "" && s.assets != nil {
			if url, err := s.assets.PresignedGetURL(ctx, resource.AttachmentKey, 15*time.Minute); err == nil {
				downloadURL = url
			}
		}
		items = append(items, resourcePayload(resource, downloadURL))
	}
	return map[string]any{"resources": items}, nil
}

// AttachResourceFile streams an upload into object storage and records the
// key on the resource. Replacing an attachment overwrites the key; old
// objects are not garbage collected here.
func (s *Service) AttachResourceFile(ctx context.Context, resourceID, userID, filename, contentType string, body io.Reader, size int64) (map[string]any, error) {
	if s.assets == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage is not available")
	}
	resource, err := s.store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource.OwnerID != userID {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	}

	key := "resources/" + resourceID + "/" + util.NewID("att")
	if filename != "" {
		key += "-" + sanitizeObjectName(filename)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.assets.Put(ctx, key, body, size, contentType); err != nil {
		return nil, err
	}
	ok, err := s.store.SetResourceAttachment(ctx, resourceID, userID, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	}

	downloadURL, err := s.assets.PresignedGetURL(ctx, key, 15*time.Minute)
	if err != nil {
		return nil, err
	}
	resource.AttachmentKey = key
	return map[string]any{"resource": resourcePayload(resource, downloadURL)}, nil
}

func (s *Service) CreateTransaction(ctx context.Context, userID string, amountCents int64, currency, direction, category, description string, occurredAt time.Time) (map[string]any, error) {
	if amountCents <= 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "amountCents must be positive")
	}
	if !transactionDirections[direction] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "direction must be income or expense")
	}
	if currency == "" {
		currency = "USD"
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	txn := store.Transaction{
		ID:          util.NewID("txn"),
		OwnerID:     userID,
		AmountCents: amountCents,
		Currency:    strings.ToUpper(currency),
		Direction:   direction,
		Category:    category,
		Description: description,
		OccurredAt:  occurredAt,
	}
	if err := s.store.InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return map[string]any{"transaction": transactionPayload(txn)}, nil
}

func (s *Service) ListTransactions(ctx context.Context, userID string, limit int) (map[string]any, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	transactions, err := s.store.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(transactions))
	for _, txn := range transactions {
		items = append(items, transactionPayload(txn))
	}
	return map[string]any{"transactions": items}, nil
}

func (s *Service) TransactionSummary(ctx context.Context, userID string) (map[string]any, error) {
	totals, err := s.store.CategoryTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(totals))
	var income, expense int64
	for _, total := range totals {
		items = append(items, map[string]any{
			"category":   total.Category,
			"direction":  total.Direction,
			"totalCents": total.TotalCents,
		})
		switch total.Direction {
		case "income":
			income += total.TotalCents
		case "expense":
			expense += total.TotalCents
		}
	}
	return map[string]any{
		"categories":   items,
		"incomeCents":  income,
		"expenseCents": expense,
		"netCents":     income - expense,
	}, nil
}

func (s *Service) CreateLearningPath(ctx context.Context, userID, title, description string) (map[string]any, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
	}
	path := store.LearningPath{
		ID:          util.NewID("pth"),
		OwnerID:     userID,
		Title:       title,
		Description: description,
	}
	if err := s.store.InsertLearningPath(ctx, path); err != nil {
		return nil, err
	}
	return map[string]any{"path": pathPayload(path)}, nil
}

func (s *Service) ListLearningPaths(ctx context.Context, userID string) (map[string]any, error) {
	paths, err := s.store.ListLearningPaths(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(paths))
	for _, path := range paths {
		items = append(items, pathPayload(path))
	}
	return map[string]any{"paths": items}, nil
}

func taskPayload(task store.Task) map[string]any {
	payload := map[string]any{
		"id":       task.ID,
		"title":    task.Title,
		"notes":    task.Notes,
		"status":   task.Status,
		"priority": task.Priority,
	}
	if task.DueAt != nil {
		payload["dueAt"] = task.DueAt
	}
	return payload
}

func habitPayload(habit store.Habit) map[string]any {
	return map[string]any{
		"id":   habit.ID,
		"name": habit.Name,
		"days": habit.Days,
	}
}

func goalPayload(goal store.Goal) map[string]any {
	payload := map[string]any{
		"id":          goal.ID,
		"title":       goal.Title,
		"description": goal.Description,
		"progress":    goal.Progress,
	}
	if goal.TargetDate != nil {
		payload["targetDate"] = goal.TargetDate.Format("2006-01-02")
	}
	return payload
}

func notePayload(note store.Note) map[string]any {
	return map[string]any{
		"id":        note.ID,
		"title":     note.Title,
		"body":      note.Body,
		"updatedAt": note.UpdatedAt,
	}
}

func resourcePayload(resource store.Resource, downloadURL string) map[string]any {
	payload := map[string]any{
		"id":    resource.ID,
		"title": resource.Title,
		"url":   resource.URL,
		"kind":  resource.Kind,
	}
	payload["hasAttachment"] = resource.AttachmentKey != ""
	if downloadURL != "" {
		payload["downloadUrl"] = downloadURL
	}
	return payload
}

func transactionPayload(txn store.Transaction) map[string]any {
	return map[string]any{
		"id":          txn.ID,
		"amountCents": txn.AmountCents,
		"currency":    txn.Currency,
		"direction":   txn.Direction,
		"category":    txn.Category,
		"description": txn.Description,
		"occurredAt":  txn.OccurredAt,
	}
}

func pathPayload(path store.LearningPath) map[string]any {
	return map[string]any{
		"id":          path.ID,
		"title":       path.Title,
		"description": path.Description,
	}
}

func sanitizeObjectName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if len(out) > 80 {
		out = out[:80]
	}
	return out
}
