package app

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"lifeboard/api/internal/auth"
	"lifeboard/api/internal/config"
	"lifeboard/api/internal/store"
)

// fakeStore keeps roadmap, chat, and user state in memory and mirrors the
// Postgres semantics the service relies on, including the one-copy-per-
// (owner, original) constraint. Function fields override single methods.
type fakeStore struct {
	mu sync.Mutex

	users       map[string]store.User
	roadmaps    map[string]store.Roadmap
	steps       map[string][]store.RoadmapStep
	messages    []store.ChatMessage
	sharedItems []store.ChatSharedItem
	teamRoles   map[string]string    // teamID + "/" + userID -> role
	teamReads   map[string]time.Time // teamID + "/" + userID -> last read

	categoryTotals []store.CategoryTotal

	now time.Time

	findChatCopyFn         func(context.Context, string, string) (*store.Roadmap, error)
	isItemSharedFn         func(context.Context, string, string, string) (bool, error)
	insertSharedMessageFn  func(context.Context, store.ChatMessage, store.ChatSharedItem) error
	replaceContentFn       func(context.Context, string, string, string, []store.RoadmapStep, time.Time) error
	revokedJTIs            map[string]bool
	refreshSessions        map[string]string
	refreshSessionExpiries map[string]time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:                  make(map[string]store.User),
		roadmaps:               make(map[string]store.Roadmap),
		steps:                  make(map[string][]store.RoadmapStep),
		teamRoles:              make(map[string]string),
		teamReads:              make(map[string]time.Time),
		revokedJTIs:            make(map[string]bool),
		refreshSessions:        make(map[string]string),
		refreshSessionExpiries: make(map[string]time.Time),
		now:                    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) GetUserByID(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedJTIs[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokedJTIs[jti], nil
}

func (f *fakeStore) InsertTeam(context.Context, store.Team) error        { return nil }
func (f *fakeStore) GetTeam(context.Context, string) (store.Team, error) { return store.Team{}, nil }
func (f *fakeStore) ListTeamsForUser(context.Context, string) ([]store.Team, error) {
	return nil, nil
}
func (f *fakeStore) AddTeamMember(context.Context, string, string, string) error { return nil }

func (f *fakeStore) TeamRole(_ context.Context, teamID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.teamRoles[teamID+"/"+userID], nil
}

func (f *fakeStore) InsertProject(context.Context, store.Project) error { return nil }
func (f *fakeStore) ListProjects(context.Context, string) ([]store.Project, error) {
	return nil, nil
}

func (f *fakeStore) InsertTask(context.Context, store.Task) error { return nil }
func (f *fakeStore) ListTasks(context.Context, string, string) ([]store.Task, error) {
	return nil, nil
}
func (f *fakeStore) UpdateTask(context.Context, store.Task) (bool, error)        { return true, nil }
func (f *fakeStore) DeleteTask(context.Context, string, string) (bool, error)    { return true, nil }
func (f *fakeStore) InsertHabit(context.Context, store.Habit) error              { return nil }
func (f *fakeStore) ListHabits(context.Context, string) ([]store.Habit, error)   { return nil, nil }
func (f *fakeStore) GetHabit(context.Context, string, string) (store.Habit, error) {
	return store.Habit{}, nil
}
func (f *fakeStore) ToggleHabitEntry(context.Context, string, string) (bool, error) {
	return true, nil
}
func (f *fakeStore) ListHabitEntries(context.Context, string, string, string) ([]store.HabitEntry, error) {
	return nil, nil
}
func (f *fakeStore) InsertGoal(context.Context, store.Goal) error            { return nil }
func (f *fakeStore) GetGoal(context.Context, string) (store.Goal, error)     { return store.Goal{}, nil }
func (f *fakeStore) ListGoals(context.Context, string) ([]store.Goal, error) { return nil, nil }
func (f *fakeStore) UpdateGoalProgress(context.Context, string, string, int) (bool, error) {
	return true, nil
}
func (f *fakeStore) InsertNote(context.Context, store.Note) error            { return nil }
func (f *fakeStore) GetNote(context.Context, string) (store.Note, error)     { return store.Note{}, sql.ErrNoRows }
func (f *fakeStore) ListNotes(context.Context, string) ([]store.Note, error) { return nil, nil }
func (f *fakeStore) UpdateNote(context.Context, store.Note) (bool, error)    { return true, nil }
func (f *fakeStore) DeleteNote(context.Context, string, string) (bool, error) {
	return true, nil
}
func (f *fakeStore) InsertResource(context.Context, store.Resource) error { return nil }
func (f *fakeStore) GetResource(context.Context, string) (store.Resource, error) {
	return store.Resource{}, sql.ErrNoRows
}
func (f *fakeStore) ListResources(context.Context, string) ([]store.Resource, error) {
	return nil, nil
}
func (f *fakeStore) SetResourceAttachment(context.Context, string, string, string) (bool, error) {
	return true, nil
}
func (f *fakeStore) InsertTransaction(context.Context, store.Transaction) error { return nil }
func (f *fakeStore) ListTransactions(context.Context, string, int) ([]store.Transaction, error) {
	return nil, nil
}
func (f *fakeStore) CategoryTotals(context.Context, string) ([]store.CategoryTotal, error) {
	return f.categoryTotals, nil
}
func (f *fakeStore) InsertLearningPath(context.Context, store.LearningPath) error { return nil }
func (f *fakeStore) GetLearningPath(context.Context, string) (store.LearningPath, error) {
	return store.LearningPath{}, sql.ErrNoRows
}
func (f *fakeStore) ListLearningPaths(context.Context, string) ([]store.LearningPath, error) {
	return nil, nil
}

func (f *fakeStore) InsertRoadmap(_ context.Context, roadmap store.Roadmap) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if roadmap.CreatedAt.IsZero() {
		roadmap.CreatedAt = f.now
		roadmap.UpdatedAt = f.now
	}
	f.roadmaps[roadmap.ID] = roadmap
	return nil
}

func (f *fakeStore) GetRoadmap(_ context.Context, roadmapID string) (store.Roadmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roadmap, ok := f.roadmaps[roadmapID]
	if !ok {
		return store.Roadmap{}, sql.ErrNoRows
	}
	return roadmap, nil
}

func (f *fakeStore) ListRoadmaps(_ context.Context, ownerID string) ([]store.Roadmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.Roadmap, 0)
	for _, roadmap := range f.roadmaps {
		if roadmap.OwnerID == ownerID {
			items = append(items, roadmap)
		}
	}
	return items, nil
}

func (f *fakeStore) UpdateRoadmap(_ context.Context, roadmapID, ownerID, title, description string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	roadmap, ok := f.roadmaps[roadmapID]
	if !ok || roadmap.OwnerID != ownerID {
		return false, nil
	}
	roadmap.Title = title
	roadmap.Description = description
	roadmap.UpdatedAt = time.Now()
	f.roadmaps[roadmapID] = roadmap
	return true, nil
}

func (f *fakeStore) findChatCopyLocked(ownerID, originalID string) *store.Roadmap {
	for _, roadmap := range f.roadmaps {
		if roadmap.OwnerID == ownerID && roadmap.OriginalRoadmapID == originalID && roadmap.CopiedFromChat {
			found := roadmap
			return &found
		}
	}
	return nil
}

func (f *fakeStore) FindChatCopy(ctx context.Context, ownerID, originalID string) (*store.Roadmap, error) {
	if f.findChatCopyFn != nil {
		return f.findChatCopyFn(ctx, ownerID, originalID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findChatCopyLocked(ownerID, originalID), nil
}

func (f *fakeStore) InsertRoadmapStep(_ context.Context, step store.RoadmapStep) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps[step.RoadmapID] = append(f.steps[step.RoadmapID], step)
	return nil
}

func (f *fakeStore) InsertStepLink(context.Context, store.StepLink) error { return nil }

func (f *fakeStore) ListRoadmapSteps(_ context.Context, roadmapID string) ([]store.RoadmapStep, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.RoadmapStep(nil), f.steps[roadmapID]...), nil
}

func (f *fakeStore) InsertRoadmapCopy(_ context.Context, copy store.Roadmap, steps []store.RoadmapStep) (store.Roadmap, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing := f.findChatCopyLocked(copy.OwnerID, copy.OriginalRoadmapID); existing != nil {
		return *existing, false, nil
	}
	copy.CopiedFromChat = true
	copy.CreatedAt = f.now
	copy.UpdatedAt = f.now
	f.roadmaps[copy.ID] = copy
	f.steps[copy.ID] = append([]store.RoadmapStep(nil), steps...)
	return copy, true, nil
}

func (f *fakeStore) ReplaceRoadmapContent(ctx context.Context, roadmapID, title, description string, steps []store.RoadmapStep, stamp time.Time) error {
	if f.replaceContentFn != nil {
		return f.replaceContentFn(ctx, roadmapID, title, description, steps, stamp)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	roadmap, ok := f.roadmaps[roadmapID]
	if !ok {
		return sql.ErrNoRows
	}
	roadmap.Title = title
	roadmap.Description = description
	roadmap.UpdatedAt = stamp
	f.roadmaps[roadmapID] = roadmap
	f.steps[roadmapID] = append([]store.RoadmapStep(nil), steps...)
	return nil
}

func (f *fakeStore) InsertMessage(_ context.Context, message store.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = f.now
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeStore) InsertSharedMessage(ctx context.Context, message store.ChatMessage, item store.ChatSharedItem) error {
	if f.insertSharedMessageFn != nil {
		return f.insertSharedMessageFn(ctx, message, item)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = f.now
	}
	f.messages = append(f.messages, message)
	f.sharedItems = append(f.sharedItems, item)
	return nil
}

func (f *fakeStore) ListMessages(_ context.Context, teamID, projectID string, limit int) ([]store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.ChatMessage, 0)
	for _, message := range f.messages {
		if message.TeamID == teamID {
			items = append(items, message)
		}
	}
	return items, nil
}

func (f *fakeStore) ListSharedItems(_ context.Context, teamID string) ([]store.ChatSharedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]store.ChatSharedItem, 0)
	for _, item := range f.sharedItems {
		if item.TeamID == teamID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeStore) IsItemSharedWithUser(ctx context.Context, itemKind, itemID, userID string) (bool, error) {
	if f.isItemSharedFn != nil {
		return f.isItemSharedFn(ctx, itemKind, itemID, userID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.sharedItems {
		if item.ItemKind != itemKind || item.ItemID != itemID {
			continue
		}
		if f.teamRoles[item.TeamID+"/"+userID] != "" {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) MarkTeamRead(_ context.Context, teamID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teamReads[teamID+"/"+userID] = f.now
	return nil
}

func (f *fakeStore) UnreadCounts(_ context.Context, userID string) ([]store.UnreadCount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	teams := make([]string, 0)
	for key := range f.teamRoles {
		if strings.HasSuffix(key, "/"+userID) {
			teams = append(teams, strings.TrimSuffix(key, "/"+userID))
		}
	}
	sort.Strings(teams)
	counts := make([]store.UnreadCount, 0, len(teams))
	for _, team := range teams {
		lastRead := f.teamReads[team+"/"+userID]
		count := 0
		for _, message := range f.messages {
			if message.TeamID == team && message.AuthorID != userID && message.CreatedAt.After(lastRead) {
				count++
			}
		}
		counts = append(counts, store.UnreadCount{TeamID: team, Count: count})
	}
	return counts, nil
}

// fakeSessions is an in-memory sessionStore.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]string)}
}

func (f *fakeSessions) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = userID
	return nil
}

func (f *fakeSessions) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.sessions[tokenHash]
	if !ok {
		return "", sql.ErrNoRows
	}
	return userID, nil
}

func (f *fakeSessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		TokenSecret: "test-secret",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  24 * time.Hour,
	}
}

func newTestService(fs *fakeStore) *Service {
	return &Service{
		cfg:      testConfig(),
		store:    fs,
		sessions: newFakeSessions(),
	}
}

func TestCreateSessionAndParse(t *testing.T) {
	fs := newFakeStore()
	fs.users["usr_1"] = store.User{ID: "usr_1", DisplayName: "Mara", Email: "mara@example.com"}
	svc := newTestService(fs)

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.Token == "" || session.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if session.UserName != "Mara" {
		t.Fatalf("userName = %q", session.UserName)
	}

	parsed, err := svc.SessionFromToken(context.Background(), session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if parsed.UserID != "usr_1" || parsed.JTI != session.JTI {
		t.Fatalf("parsed session mismatch: %+v", parsed)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := newFakeStore()
	fs.users["usr_1"] = store.User{ID: "usr_1", DisplayName: "Mara"}
	svc := newTestService(fs)

	first, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	second, err := svc.Refresh(context.Background(), first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// The consumed refresh token must not work again.
	if _, err := svc.Refresh(context.Background(), first.RefreshToken); err == nil {
		t.Fatal("expected reuse of old refresh token to fail")
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	fs := newFakeStore()
	fs.users["usr_1"] = store.User{ID: "usr_1", DisplayName: "Mara"}
	svc := newTestService(fs)

	session, err := svc.CreateSession(context.Background(), "usr_1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := svc.Logout(context.Background(), session, session.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	if _, err := svc.SessionFromToken(context.Background(), session.Token); err == nil {
		t.Fatal("expected revoked token to be rejected")
	}
	if _, err := svc.Refresh(context.Background(), session.RefreshToken); err == nil {
		t.Fatal("expected revoked refresh token to be rejected")
	}
}

func TestSessionFromTokenRejectsGarbage(t *testing.T) {
	svc := newTestService(newFakeStore())
	if _, err := svc.SessionFromToken(context.Background(), "not-a-token"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := svc.SessionFromToken(context.Background(), ""); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for empty token, got %v", err)
	}
}
