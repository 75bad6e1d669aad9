package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Team struct {
	ID        string
	Name      string
	Slug      string
	CreatedBy string
	CreatedAt time.Time
}

type TeamMembership struct {
	TeamID   string
	UserID   string
	Role     string
	JoinedAt time.Time
}

type Project struct {
	ID        string
	TeamID    string
	Name      string
	CreatedBy string
	CreatedAt time.Time
}

type Task struct {
	ID        string
	OwnerID   string
	Title     string
	Notes     string
	Status    string
	Priority  int
	DueAt     *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Habit struct {
	ID      string
	OwnerID string
	Name    string
	// Days is a seven-bit schedule mask, Monday first.
	Days      int
	CreatedAt time.Time
}

type HabitEntry struct {
	HabitID     string
	Day         string
	CompletedAt time.Time
}

type Goal struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Progress    int
	TargetDate  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Note struct {
	ID        string
	OwnerID   string
	Title     string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Resource struct {
	ID            string
	OwnerID       string
	Title         string
	URL           string
	Kind          string
	AttachmentKey string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Transaction struct {
	ID          string
	OwnerID     string
	AmountCents int64
	Currency    string
	Direction   string
	Category    string
	Description string
	OccurredAt  time.Time
	CreatedAt   time.Time
}

type LearningPath struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Roadmap struct {
	ID                string
	OwnerID           string
	Title             string
	Description       string
	OriginalRoadmapID string
	CopiedFromChat    bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// EffectiveUpdatedAt is the timestamp staleness comparisons use. A copy that
// was never touched after materialization may carry a zero or stale
// updated_at, so created_at is the floor.
func (r Roadmap) EffectiveUpdatedAt() time.Time {
	if r.UpdatedAt.After(r.CreatedAt) {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

type RoadmapStep struct {
	ID        string
	RoadmapID string
	SortOrder int
	Title     string
	Body      string
	Links     []StepLink
	CreatedAt time.Time
}

// StepLink points a roadmap step at exactly one other entity. The
// (TargetKind, TargetID) pair replaces the four mutually-exclusive nullable
// foreign keys the original data model carried.
type StepLink struct {
	ID         string
	StepID     string
	TargetKind string
	TargetID   string
}

const (
	LinkKindNote     = "note"
	LinkKindPath     = "path"
	LinkKindResource = "resource"
	LinkKindGoal     = "goal"
)

type ChatMessage struct {
	ID          string
	TeamID      string
	ProjectID   string
	AuthorID    string
	AuthorName  string
	Body        string
	Attachments string
	CreatedAt   time.Time
}

type ChatSharedItem struct {
	ID        string
	MessageID string
	TeamID    string
	ProjectID string
	ItemKind  string
	ItemID    string
	SharedBy  string
	CreatedAt time.Time
}

const (
	ShareKindResource     = "resource"
	ShareKindNote         = "note"
	ShareKindLearningPath = "learning_path"
	ShareKindRoadmap      = "roadmap"
)

type UnreadCount struct {
	TeamID string
	Count  int
}

type CategoryTotal struct {
	Category   string
	Direction  string
	TotalCents int64
}
