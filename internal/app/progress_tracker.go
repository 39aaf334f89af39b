package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"hackathon-session-service/internal/domain"
)

// ProgressStore abstracts durable per-user progress records. A miss on
// FetchUserByID is reported as domain.ErrUserNotFound and callers treat it as
// first-time state. Both persist methods either fully apply or fully fail.
type ProgressStore interface {
	FetchUserByID(ctx context.Context, userID string) (domain.UserRecord, error)
	PersistPracticeProgress(ctx context.Context, userID string, practice map[int]domain.PracticeItemProgress) error
	PersistHackathonProgress(ctx context.Context, userID string, hackathon domain.HackathonProgress) error
}

// CatalogRepository loads the content catalog (from cache/backing store).
type CatalogRepository interface {
	GetCatalog(ctx context.Context) (domain.Catalog, error)
}

// TrackerConfig fixes the catalog sizes used by completion derivations. The
// sizes are configuration, not derived from data, so a CurrentLevel past
// HackathonLevelCount yields a percentage over 100.
type TrackerConfig struct {
	PracticeItemCount   int
	HackathonLevelCount int
}

// PracticeUpdate is a partial update merged into one practice item. Nil
// fields are left unchanged; Fields entries are merged key-by-key.
type PracticeUpdate struct {
	Completed *bool
	Score     *float64
	Fields    map[string]any
}

// HackathonUpdate is a partial update merged into the hackathon record.
// Callers supply internally consistent merges: TotalScore, when set, must
// already include any new contribution — the tracker does not recompute it.
type HackathonUpdate struct {
	CurrentLevel  *int
	AddLevels     []int
	TotalScore    *float64
	Contributions map[int]domain.Contribution
}

// Completion summarizes the practice track against the configured item count.
type Completion struct {
	Completed  int     `json:"completed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// LevelCompletion summarizes the hackathon track against the configured
// level count.
type LevelCompletion struct {
	CurrentLevel int     `json:"currentLevel"`
	MaxLevel     int     `json:"maxLevel"`
	Percentage   float64 `json:"percentage"`
}

// ProgressTracker owns one user's progress across both tracks. Reads are
// served from local state; writes go through the store and replace local
// state only on confirmed success, so a failed persist leaves everything
// exactly as it was. Callers are expected to keep one update in flight per
// user; concurrent updates race on the same base state and the second write
// silently wins.
type ProgressTracker struct {
	store ProgressStore
	cfg   TrackerConfig
	queue *NotificationQueue
	now   func() time.Time

	mu        sync.Mutex
	userID    string
	practice  map[int]domain.PracticeItemProgress
	hackathon domain.HackathonProgress
}

// NewProgressTracker builds a tracker; queue may be nil when no notification
// surface exists (e.g. instructor views).
func NewProgressTracker(store ProgressStore, cfg TrackerConfig, queue *NotificationQueue) *ProgressTracker {
	return NewProgressTrackerWithClock(store, cfg, queue, time.Now)
}

// NewProgressTrackerWithClock allows deterministic timestamps in tests.
func NewProgressTrackerWithClock(store ProgressStore, cfg TrackerConfig, queue *NotificationQueue, now func() time.Time) *ProgressTracker {
	return &ProgressTracker{
		store:     store,
		cfg:       cfg,
		queue:     queue,
		now:       now,
		practice:  make(map[int]domain.PracticeItemProgress),
		hackathon: emptyHackathon(),
	}
}

func emptyHackathon() domain.HackathonProgress {
	return domain.HackathonProgress{
		IndividualContributions: make(map[int]domain.Contribution),
	}
}

// Load hydrates local state from the store for userID, resetting to zero
// state on a miss or a store failure. It must run before updates for a new
// user id; updates issued against a stale pre-load snapshot are the caller's
// race to prevent.
func (t *ProgressTracker) Load(ctx context.Context, userID string) {
	record, err := t.store.FetchUserByID(ctx, userID)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.userID = userID
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			log.Printf("load progress for %s: %v", userID, err)
		}
		t.practice = make(map[int]domain.PracticeItemProgress)
		t.hackathon = emptyHackathon()
		return
	}

	t.practice = clonePractice(record.Practice)
	t.hackathon = record.Hackathon.Clone()
	if t.hackathon.IndividualContributions == nil {
		t.hackathon.IndividualContributions = make(map[int]domain.Contribution)
	}
}

// UpdatePractice merges update into the record for itemID (creating it if
// absent), increments its attempt counter and persists the full mapping.
// Returns false with local state untouched when the write does not succeed.
func (t *ProgressTracker) UpdatePractice(ctx context.Context, itemID int, update PracticeUpdate) bool {
	t.mu.Lock()
	next := clonePractice(t.practice)
	item := next[itemID]
	item.Attempts++
	if update.Completed != nil {
		item.Completed = *update.Completed
	}
	if update.Score != nil {
		item.Score = *update.Score
	}
	if len(update.Fields) > 0 {
		if item.Fields == nil {
			item.Fields = make(map[string]any, len(update.Fields))
		}
		for k, v := range update.Fields {
			item.Fields[k] = v
		}
	}
	next[itemID] = item
	userID := t.userID
	t.mu.Unlock()

	if err := t.store.PersistPracticeProgress(ctx, userID, next); err != nil {
		log.Printf("persist practice for %s: %v", userID, err)
		t.pushWarning("Could not save practice progress")
		return false
	}

	t.mu.Lock()
	t.practice = next
	t.mu.Unlock()

	if update.Completed != nil && *update.Completed {
		t.push(fmt.Sprintf("Practice item %d completed!", itemID), domain.NotificationAchievement)
	}
	return true
}

// UpdateHackathon merges update into the hackathon record and persists it.
// Returns false with local state untouched when the write does not succeed.
func (t *ProgressTracker) UpdateHackathon(ctx context.Context, update HackathonUpdate) bool {
	t.mu.Lock()
	next := t.hackathon.Clone()
	if update.CurrentLevel != nil {
		next.CurrentLevel = *update.CurrentLevel
	}
	for _, level := range update.AddLevels {
		next.AddLevel(level)
	}
	if update.TotalScore != nil {
		next.TotalScore = *update.TotalScore
	}
	for level, contribution := range update.Contributions {
		next.IndividualContributions[level] = contribution
	}
	userID := t.userID
	t.mu.Unlock()

	if err := t.store.PersistHackathonProgress(ctx, userID, next); err != nil {
		log.Printf("persist hackathon for %s: %v", userID, err)
		t.pushWarning("Could not save hackathon progress")
		return false
	}

	t.mu.Lock()
	t.hackathon = next
	t.mu.Unlock()
	return true
}

// CompleteLevel records a level completion: advances the current level,
// marks the level completed, adds score to the running total and stores the
// contribution. It is deliberately not idempotent — a second call for the
// same level adds score again while the completed set is unchanged. Callers
// must gate on LevelCompleted before invoking.
func (t *ProgressTracker) CompleteLevel(ctx context.Context, level int, score float64, timeSpent int) bool {
	t.mu.Lock()
	nextLevel := t.hackathon.CurrentLevel
	if level+1 > nextLevel {
		nextLevel = level + 1
	}
	total := t.hackathon.TotalScore + score
	t.mu.Unlock()

	ok := t.UpdateHackathon(ctx, HackathonUpdate{
		CurrentLevel: &nextLevel,
		AddLevels:    []int{level},
		TotalScore:   &total,
		Contributions: map[int]domain.Contribution{
			level: {Score: score, TimeSpent: timeSpent, CompletedAt: t.now()},
		},
	})
	if !ok {
		return false
	}

	t.push(fmt.Sprintf("Level %d complete! +%.0f points", level, score), domain.NotificationSuccess)
	if done := t.HackathonCompletion(); done.CurrentLevel >= done.MaxLevel && done.MaxLevel > 0 {
		t.push("All levels cleared!", domain.NotificationMilestone)
	}
	return true
}

// LevelCompleted reports whether level is already in the completed set; the
// gate callers apply before CompleteLevel.
func (t *ProgressTracker) LevelCompleted(level int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hackathon.HasLevel(level)
}

// TotalScore sums all practice item scores and the hackathon total.
func (t *ProgressTracker) TotalScore() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.hackathon.TotalScore
	for _, item := range t.practice {
		total += item.Score
	}
	return total
}

// PracticeCompletion derives completion against the configured item count.
func (t *ProgressTracker) PracticeCompletion() Completion {
	t.mu.Lock()
	defer t.mu.Unlock()
	completed := 0
	for _, item := range t.practice {
		if item.Completed {
			completed++
		}
	}
	out := Completion{Completed: completed, Total: t.cfg.PracticeItemCount}
	if out.Total > 0 {
		out.Percentage = float64(completed) / float64(out.Total) * 100
	}
	return out
}

// HackathonCompletion derives completion against the configured level count.
// The percentage is not clamped.
func (t *ProgressTracker) HackathonCompletion() LevelCompletion {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := LevelCompletion{CurrentLevel: t.hackathon.CurrentLevel, MaxLevel: t.cfg.HackathonLevelCount}
	if out.MaxLevel > 0 {
		out.Percentage = float64(out.CurrentLevel) / float64(out.MaxLevel) * 100
	}
	return out
}

// PracticeProgress returns a copy of the practice mapping.
func (t *ProgressTracker) PracticeProgress() map[int]domain.PracticeItemProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return clonePractice(t.practice)
}

// HackathonProgress returns a copy of the hackathon record.
func (t *ProgressTracker) HackathonProgress() domain.HackathonProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hackathon.Clone()
}

func (t *ProgressTracker) push(message string, kind domain.NotificationKind) {
	if t.queue != nil {
		t.queue.Push(message, kind)
	}
}

func (t *ProgressTracker) pushWarning(message string) {
	t.push(message, domain.NotificationWarning)
}

func clonePractice(in map[int]domain.PracticeItemProgress) map[int]domain.PracticeItemProgress {
	out := make(map[int]domain.PracticeItemProgress, len(in))
	for id, item := range in {
		if item.Fields != nil {
			fields := make(map[string]any, len(item.Fields))
			for k, v := range item.Fields {
				fields[k] = v
			}
			item.Fields = fields
		}
		out[id] = item
	}
	return out
}
