package app

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"lifeboard/api/internal/auth"
	"lifeboard/api/internal/authpw"
	"lifeboard/api/internal/config"
	"lifeboard/api/internal/email"
	"lifeboard/api/internal/export"
	"lifeboard/api/internal/history"
	"lifeboard/api/internal/rbac"
	"lifeboard/api/internal/search"
	"lifeboard/api/internal/store"
	"lifeboard/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the persistence surface the service depends on. PostgresStore
// implements all of it; tests substitute function-field fakes.
type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)

	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	InsertTeam(context.Context, store.Team) error
	GetTeam(context.Context, string) (store.Team, error)
	ListTeamsForUser(context.Context, string) ([]store.Team, error)
	AddTeamMember(context.Context, string, string, string) error
	TeamRole(context.Context, string, string) (string, error)
	InsertProject(context.Context, store.Project) error
	ListProjects(context.Context, string) ([]store.Project, error)

	InsertTask(context.Context, store.Task) error
	ListTasks(context.Context, string, string) ([]store.Task, error)
	UpdateTask(context.Context, store.Task) (bool, error)
	DeleteTask(context.Context, string, string) (bool, error)
	InsertHabit(context.Context, store.Habit) error
	ListHabits(context.Context, string) ([]store.Habit, error)
	GetHabit(context.Context, string, string) (store.Habit, error)
	ToggleHabitEntry(context.Context, string, string) (bool, error)
	ListHabitEntries(context.Context, string, string, string) ([]store.HabitEntry, error)
	InsertGoal(context.Context, store.Goal) error
	GetGoal(context.Context, string) (store.Goal, error)
	ListGoals(context.Context, string) ([]store.Goal, error)
	UpdateGoalProgress(context.Context, string, string, int) (bool, error)
	InsertNote(context.Context, store.Note) error
	GetNote(context.Context, string) (store.Note, error)
	ListNotes(context.Context, string) ([]store.Note, error)
	UpdateNote(context.Context, store.Note) (bool, error)
	DeleteNote(context.Context, string, string) (bool, error)
	InsertResource(context.Context, store.Resource) error
	GetResource(context.Context, string) (store.Resource, error)
	ListResources(context.Context, string) ([]store.Resource, error)
	SetResourceAttachment(context.Context, string, string, string) (bool, error)
	InsertTransaction(context.Context, store.Transaction) error
	ListTransactions(context.Context, string, int) ([]store.Transaction, error)
	CategoryTotals(context.Context, string) ([]store.CategoryTotal, error)
	InsertLearningPath(context.Context, store.LearningPath) error
	GetLearningPath(context.Context, string) (store.LearningPath, error)
	ListLearningPaths(context.Context, string) ([]store.LearningPath, error)

	InsertRoadmap(context.Context, store.Roadmap) error
	GetRoadmap(context.Context, string) (store.Roadmap, error)
	ListRoadmaps(context.Context, string) ([]store.Roadmap, error)
	UpdateRoadmap(context.Context, string, string, string, string) (bool, error)
	FindChatCopy(context.Context, string, string) (*store.Roadmap, error)
	InsertRoadmapStep(context.Context, store.RoadmapStep) error
	ListRoadmapSteps(context.Context, string) ([]store.RoadmapStep, error)
	InsertRoadmapCopy(context.Context, store.Roadmap, []store.RoadmapStep) (store.Roadmap, bool, error)
	ReplaceRoadmapContent(context.Context, string, string, string, []store.RoadmapStep, time.Time) error

	InsertMessage(context.Context, store.ChatMessage) error
	InsertSharedMessage(context.Context, store.ChatMessage, store.ChatSharedItem) error
	ListMessages(context.Context, string, string, int) ([]store.ChatMessage, error)
	ListSharedItems(context.Context, string) ([]store.ChatSharedItem, error)
	IsItemSharedWithUser(context.Context, string, string, string) (bool, error)
	MarkTeamRead(context.Context, string, string) error
	UnreadCounts(context.Context, string) ([]store.UnreadCount, error)
}

// sessionStore holds refresh sessions. Redis when configured, Postgres
// otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// pgSessionStore adapts PostgresStore's session methods to sessionStore.
type pgSessionStore struct {
	store *store.PostgresStore
}

func (p pgSessionStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, userID, expiresAt)
}

func (p pgSessionStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	user, err := p.store.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func (p pgSessionStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

// snapshotTrail is the slice of the history service the roadmap flow needs.
type snapshotTrail interface {
	Record(roadmapID string, snap history.Snapshot, author, message string) (history.CommitInfo, error)
	History(roadmapID string, limit int) ([]history.CommitInfo, error)
	SnapshotAt(roadmapID, hash string) (history.Snapshot, error)
}

type roadmapExporter interface {
	ExportPDF(rm export.Roadmap) (*export.Result, error)
}

// attachmentStore is backed by MinIO; nil when object storage is not
// configured.
type attachmentStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// eventPublisher notifies connected chat clients. Redis pub/sub when
// configured; nil otherwise, and chat works without it.
type eventPublisher interface {
	PublishChatEvent(ctx context.Context, teamID string, payload []byte) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	search   *search.Service
	authpw   *authpw.Service
	mail     *email.Service
	history  snapshotTrail
	exporter roadmapExporter
	assets   attachmentStore
	events   eventPublisher
}

type Deps struct {
	Store    *store.PostgresStore
	Sessions sessionStore
	Search   *search.Service
	AuthPW   *authpw.Service
	Mail     *email.Service
	History  snapshotTrail
	Exporter roadmapExporter
	Assets   attachmentStore
	Events   eventPublisher
}

func New(cfg config.Config, deps Deps) *Service {
	sessions := deps.Sessions
	if sessions == nil && deps.Store != nil {
		sessions = pgSessionStore{store: deps.Store}
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: sessions,
		search:   deps.Search,
		authpw:   deps.AuthPW,
		mail:     deps.Mail,
		history:  deps.History,
		exporter: deps.Exporter,
		assets:   deps.Assets,
		events:   deps.Events,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

// SendVerificationEmail is best effort: signup succeeds even when mail fails.
func (s *Service) SendVerificationEmail(to, userName, token string) {
	if !s.SMTPConfigured() {
		return
	}
	url := strings.TrimRight(s.cfg.CORSOrigin, "/") + "/verify-email?token=" + token
	if err := s.mail.SendVerificationEmail(to, userName, url); err != nil {
		log.Printf("email: send verification to %s: %v", to, err)
	}
}

func (s *Service) SendPasswordResetEmail(ctx context.Context, to, token string) {
	if !s.SMTPConfigured() {
		return
	}
	userName := "there"
	if user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(to))); err == nil {
		userName = user.DisplayName
	}
	url := strings.TrimRight(s.cfg.CORSOrigin, "/") + "/reset-password?token=" + token
	if err := s.mail.SendPasswordResetEmail(to, userName, url); err != nil {
		log.Printf("email: send reset to %s: %v", to, err)
	}
}

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

// requireTeamAction resolves the caller's role in the team and checks the
// action against it. Non-members get 403, not 404: team existence is not a
// secret among authenticated users.
func (s *Service) requireTeamAction(ctx context.Context, teamID, userID string, action rbac.Action) error {
	role, err := s.store.TeamRole(ctx, teamID, userID)
	if err != nil {
		return err
	}
	if role == "" {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Not a member of this team")
	}
	if !rbac.Can(rbac.Normalize(role), action) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden")
	}
	return nil
}

func (s *Service) CreateTeam(ctx context.Context, name, userID string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required")
	}
	team := store.Team{
		ID:        util.NewID("team"),
		Name:      name,
		Slug:      slugify(name),
		CreatedBy: userID,
	}
	if err := s.store.InsertTeam(ctx, team); err != nil {
		return nil, err
	}
	return map[string]any{"team": teamPayload(team)}, nil
}

func (s *Service) ListTeams(ctx context.Context, userID string) (map[string]any, error) {
	teams, err := s.store.ListTeamsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(teams))
	for _, team := range teams {
		items = append(items, teamPayload(team))
	}
	return map[string]any{"teams": items}, nil
}

func (s *Service) JoinTeam(ctx context.Context, teamID, userID string) (map[string]any, error) {
	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddTeamMember(ctx, team.ID, userID, string(rbac.RoleMember)); err != nil {
		return nil, err
	}
	return map[string]any{"team": teamPayload(team)}, nil
}

func (s *Service) CreateProject(ctx context.Context, teamID, name, userID string) (map[string]any, error) {
	if err := s.requireTeamAction(ctx, teamID, userID, rbac.ActionPost); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required")
	}
	project := store.Project{
		ID:        util.NewID("proj"),
		TeamID:    teamID,
		Name:      name,
		CreatedBy: userID,
	}
	if err := s.store.InsertProject(ctx, project); err != nil {
		return nil, err
	}
	return map[string]any{"project": projectPayload(project)}, nil
}

func (s *Service) ListTeamProjects(ctx context.Context, teamID, userID string) (map[string]any, error) {
	if err := s.requireTeamAction(ctx, teamID, userID, rbac.ActionRead); err != nil {
		return nil, err
	}
	projects, err := s.store.ListProjects(ctx, teamID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		items = append(items, projectPayload(project))
	}
	return map[string]any{"projects": items}, nil
}

// Search runs an owner-scoped search across notes, roadmaps, and resources.
func (s *Service) Search(ctx context.Context, text, filterType, ownerID string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:       text,
		OwnerID:    ownerID,
		FilterType: search.ResultType(filterType),
		Limit:      limit,
		Offset:     offset,
	}), nil
}

func teamPayload(team store.Team) map[string]any {
	return map[string]any{
		"id":        team.ID,
		"name":      team.Name,
		"slug":      team.Slug,
		"createdBy": team.CreatedBy,
		"createdAt": team.CreatedAt,
	}
}

func projectPayload(project store.Project) map[string]any {
	return map[string]any{
		"id":        project.ID,
		"teamId":    project.TeamID,
		"name":      project.Name,
		"createdBy": project.CreatedBy,
		"createdAt": project.CreatedAt,
	}
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
