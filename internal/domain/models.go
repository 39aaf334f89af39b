package domain

import "time"

// Role identifies how a user participates in a hackathon session.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// User is the externally-authenticated identity. The core treats it as
// read-only input; identity issuance lives elsewhere.
type User struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Team aggregates the score and level reached by a group of students.
type Team struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Score        float64  `json:"score"`
	CurrentLevel int      `json:"currentLevel"`
	StudentIDs   []string `json:"studentIds"`
}

// AddStudent appends a student id, keeping StudentIDs duplicate-free.
func (t *Team) AddStudent(id string) {
	for _, existing := range t.StudentIDs {
		if existing == id {
			return
		}
	}
	t.StudentIDs = append(t.StudentIDs, id)
}

// RegisteredStudent is created once per session when a student signs up for a
// team, and accumulates their submitted answers and hint usage.
type RegisteredStudent struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	TeamID    string         `json:"teamId"`
	Answers   map[int]string `json:"answers"`
	HintsUsed map[int]bool   `json:"hintsUsed"`
}

// SessionSnapshot is the shared session-wide view consumed by every screen.
type SessionSnapshot struct {
	SessionID         string             `json:"sessionId"`
	Teams             []Team             `json:"teams"`
	TimeLeft          int                `json:"timeLeft"`
	IsSessionStarted  bool               `json:"isSessionStarted"`
	RegisteredStudent *RegisteredStudent `json:"registeredStudent,omitempty"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// PracticeItemProgress records one user's state for a single practice item.
// Attempts increments by exactly one on every update to the item.
type PracticeItemProgress struct {
	Attempts  int            `json:"attempts"`
	Completed bool           `json:"completed"`
	Score     float64        `json:"score"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Contribution is a per-level scoring event for one user.
type Contribution struct {
	Score       float64   `json:"score"`
	TimeSpent   int       `json:"timeSpent"`
	CompletedAt time.Time `json:"completedAt"`
}

// HackathonProgress is one user's state on the leveled track. CurrentLevel
// never decreases; LevelsCompleted has set semantics (use HasLevel/AddLevel);
// TotalScore is caller-maintained, not recomputed from contributions.
type HackathonProgress struct {
	CurrentLevel            int                  `json:"currentLevel"`
	LevelsCompleted         []int                `json:"levelsCompleted"`
	TotalScore              float64              `json:"totalScore"`
	IndividualContributions map[int]Contribution `json:"individualContributions"`
}

// HasLevel reports whether level is in LevelsCompleted.
func (h HackathonProgress) HasLevel(level int) bool {
	for _, l := range h.LevelsCompleted {
		if l == level {
			return true
		}
	}
	return false
}

// AddLevel inserts level into LevelsCompleted if not already present.
func (h *HackathonProgress) AddLevel(level int) {
	if h.HasLevel(level) {
		return
	}
	h.LevelsCompleted = append(h.LevelsCompleted, level)
}

// Clone returns a deep copy safe to mutate independently.
func (h HackathonProgress) Clone() HackathonProgress {
	out := h
	out.LevelsCompleted = append([]int(nil), h.LevelsCompleted...)
	out.IndividualContributions = make(map[int]Contribution, len(h.IndividualContributions))
	for k, v := range h.IndividualContributions {
		out.IndividualContributions[k] = v
	}
	return out
}

// NotificationKind classifies transient UI feedback.
type NotificationKind string

const (
	NotificationSuccess     NotificationKind = "success"
	NotificationAchievement NotificationKind = "achievement"
	NotificationMilestone   NotificationKind = "milestone"
	NotificationWarning     NotificationKind = "warning"
)

// Notification is an ephemeral feedback event; it expires on its own and is
// never persisted.
type Notification struct {
	ID        int64            `json:"id"`
	Message   string           `json:"message"`
	Kind      NotificationKind `json:"kind"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Track names one of the two independent progress domains.
type Track string

const (
	TrackPractice  Track = "practice"
	TrackHackathon Track = "hackathon"
)

// UserRecord is the durable per-user record held by the remote store.
type UserRecord struct {
	ID        string
	Role      Role
	Practice  map[int]PracticeItemProgress
	Hackathon HackathonProgress
}

// Level describes one hackathon level in the content catalog.
type Level struct {
	ID       int     `json:"id"`
	Title    string  `json:"title"`
	MaxScore float64 `json:"maxScore"`
}

// PracticeItem describes one practice-track item in the content catalog.
type PracticeItem struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// Catalog is the static content listing served to views. Completion metrics
// use configured counts, not the catalog length.
type Catalog struct {
	Levels        []Level        `json:"levels"`
	PracticeItems []PracticeItem `json:"practiceItems"`
}
