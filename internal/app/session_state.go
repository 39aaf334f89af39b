package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"hackathon-session-service/internal/domain"
)

// SessionStore abstracts how session-scoped records (teams, registrations)
// are stored (in-memory, Redis, Postgres).
type SessionStore interface {
	FetchSessionTeams(ctx context.Context, sessionID string) ([]domain.Team, error)
	FetchRegisteredStudent(ctx context.Context, sessionID, userID string) (domain.RegisteredStudent, error)
	SaveRegisteredStudent(ctx context.Context, sessionID string, student domain.RegisteredStudent) error
	SaveTeam(ctx context.Context, sessionID string, team domain.Team) error
}

// View names the fixed set of navigable screens.
type View string

const (
	ViewLanding    View = "landing"
	ViewStudent    View = "student"
	ViewScoreboard View = "scoreboard"
	ViewGlobal     View = "global"
)

// Screen is the per-browsing-context position in the participant flow.
type Screen string

const (
	ScreenLanding     Screen = "landing"
	ScreenRegistering Screen = "registering"
	ScreenWaiting     Screen = "waiting"
	ScreenActive      Screen = "active"
)

// SessionState owns the shared view of one hackathon session: teams, the
// countdown, the started flag and the locally registered participant. It is
// the sole mutator of that state; views read snapshots and subscribe to
// updates.
type SessionState struct {
	store     SessionStore
	sessionID string
	now       func() time.Time

	mu          sync.RWMutex
	teams       []domain.Team
	timeLeft    int
	started     bool
	registered  *domain.RegisteredStudent
	screen      Screen
	subscribers map[chan domain.SessionSnapshot]struct{}
}

// NewSessionState builds session state with the countdown primed to
// durationSeconds. The countdown does not run until Start.
func NewSessionState(store SessionStore, sessionID string, durationSeconds int) *SessionState {
	return NewSessionStateWithClock(store, sessionID, durationSeconds, time.Now)
}

// NewSessionStateWithClock allows deterministic timestamps in tests.
func NewSessionStateWithClock(store SessionStore, sessionID string, durationSeconds int, now func() time.Time) *SessionState {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	return &SessionState{
		store:       store,
		sessionID:   sessionID,
		now:         now,
		timeLeft:    durationSeconds,
		screen:      ScreenLanding,
		subscribers: make(map[chan domain.SessionSnapshot]struct{}),
	}
}

// SessionID returns the session identifier this state serves.
func (s *SessionState) SessionID() string {
	return s.sessionID
}

// LoadTeams hydrates the team list from the store, replacing the local copy.
func (s *SessionState) LoadTeams(ctx context.Context) error {
	teams, err := s.store.FetchSessionTeams(ctx, s.sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.teams = teams
	s.broadcastLocked()
	s.mu.Unlock()
	return nil
}

// SeedTeams installs teams directly, used when no durable store is configured.
func (s *SessionState) SeedTeams(teams []domain.Team) {
	s.mu.Lock()
	s.teams = teams
	s.broadcastLocked()
	s.mu.Unlock()
}

// LoadStudentFromSession fetches a previously registered participant for the
// session/user pair. Hydration is best-effort: a miss or an unreachable store
// returns nil after logging, never an error.
func (s *SessionState) LoadStudentFromSession(ctx context.Context, sessionID, userID string) *domain.RegisteredStudent {
	student, err := s.store.FetchRegisteredStudent(ctx, sessionID, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrStudentNotFound) {
			log.Printf("load student %s/%s: %v", sessionID, userID, err)
		}
		return nil
	}

	s.mu.Lock()
	s.registered = &student
	s.broadcastLocked()
	s.mu.Unlock()
	return &student
}

// RegisterStudent validates and installs the local registration, adds the
// student to the referenced team, and moves the screen past Registering.
// The durable write is best-effort; a store failure does not undo the local
// registration.
func (s *SessionState) RegisterStudent(ctx context.Context, candidate domain.RegisteredStudent) error {
	if candidate.Name == "" {
		return domain.ErrInvalidRegistration
	}

	s.mu.Lock()
	idx := -1
	for i := range s.teams {
		if s.teams[i].ID == candidate.TeamID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return domain.ErrInvalidRegistration
	}

	if candidate.Answers == nil {
		candidate.Answers = make(map[int]string)
	}
	if candidate.HintsUsed == nil {
		candidate.HintsUsed = make(map[int]bool)
	}
	s.registered = &candidate
	s.teams[idx].AddStudent(candidate.ID)
	if s.started {
		s.screen = ScreenActive
	} else {
		s.screen = ScreenWaiting
	}
	team := s.teams[idx]
	s.broadcastLocked()
	s.mu.Unlock()

	if err := s.store.SaveRegisteredStudent(ctx, s.sessionID, candidate); err != nil {
		log.Printf("save registration %s/%s: %v", s.sessionID, candidate.ID, err)
	}
	if err := s.store.SaveTeam(ctx, s.sessionID, team); err != nil {
		log.Printf("save team %s/%s: %v", s.sessionID, team.ID, err)
	}
	return nil
}

// RecordAnswer stores an opaque answer on the registered student; no-op
// without a registration.
func (s *SessionState) RecordAnswer(ctx context.Context, level int, answer string) {
	s.mu.Lock()
	if s.registered == nil {
		s.mu.Unlock()
		return
	}
	s.registered.Answers[level] = answer
	student := *s.registered
	s.broadcastLocked()
	s.mu.Unlock()

	if err := s.store.SaveRegisteredStudent(ctx, s.sessionID, student); err != nil {
		log.Printf("save answer %s/%s: %v", s.sessionID, student.ID, err)
	}
}

// RecordHint marks a level's hint as used for the registered student.
func (s *SessionState) RecordHint(ctx context.Context, level int) {
	s.mu.Lock()
	if s.registered == nil {
		s.mu.Unlock()
		return
	}
	s.registered.HintsUsed[level] = true
	student := *s.registered
	s.broadcastLocked()
	s.mu.Unlock()

	if err := s.store.SaveRegisteredStudent(ctx, s.sessionID, student); err != nil {
		log.Printf("save hint %s/%s: %v", s.sessionID, student.ID, err)
	}
}

// ApplyTeamScore adds a completed level's score to the student's team and
// raises the team's current level. Concurrent clients writing the same team
// are last-write-wins at the store.
func (s *SessionState) ApplyTeamScore(ctx context.Context, teamID string, score float64, level int) error {
	s.mu.Lock()
	idx := -1
	for i := range s.teams {
		if s.teams[i].ID == teamID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return domain.ErrTeamNotFound
	}
	s.teams[idx].Score += score
	if level+1 > s.teams[idx].CurrentLevel {
		s.teams[idx].CurrentLevel = level + 1
	}
	team := s.teams[idx]
	s.broadcastLocked()
	s.mu.Unlock()

	if err := s.store.SaveTeam(ctx, s.sessionID, team); err != nil {
		log.Printf("save team %s/%s: %v", s.sessionID, team.ID, err)
	}
	return nil
}

// Start flips the session to started; waiting participants become active.
func (s *SessionState) Start() {
	s.mu.Lock()
	s.started = true
	if s.screen == ScreenWaiting {
		s.screen = ScreenActive
	}
	s.broadcastLocked()
	s.mu.Unlock()
}

// Tick decrements the countdown by one second. It is the sole countdown
// mutator and a no-op while the session has not started or the clock has
// already reached zero.
func (s *SessionState) Tick() {
	s.mu.Lock()
	if !s.started || s.timeLeft == 0 {
		s.mu.Unlock()
		return
	}
	s.timeLeft--
	s.broadcastLocked()
	s.mu.Unlock()
}

// RunCountdown invokes Tick on every interval until ctx is done.
func (s *SessionState) RunCountdown(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-ctx.Done():
			return
		}
	}
}

// ResolveView applies the role guard to a navigation request. Instructors
// never reach the participant screen and students never reach the summary
// screens; anything unknown falls back to the landing view.
func (s *SessionState) ResolveView(user domain.User, requested string) View {
	switch View(requested) {
	case ViewStudent:
		if user.Role == domain.RoleInstructor {
			return ViewLanding
		}
		return ViewStudent
	case ViewScoreboard, ViewGlobal:
		if user.Role == domain.RoleStudent {
			return ViewLanding
		}
		return View(requested)
	case ViewLanding:
		return ViewLanding
	default:
		return ViewLanding
	}
}

// EnterStudentView advances the screen state machine for a student arriving
// at the participant view. A registration found for the session/user pair
// short-circuits straight to Waiting or Active; otherwise the student lands
// on the registration form.
func (s *SessionState) EnterStudentView(ctx context.Context, userID string) Screen {
	s.mu.RLock()
	registered := s.registered
	s.mu.RUnlock()

	// A registration only counts for the user who owns it; anyone else goes
	// through the store lookup for their own session+user pair.
	if registered == nil || registered.ID != userID {
		registered = s.LoadStudentFromSession(ctx, s.sessionID, userID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if registered == nil {
		s.screen = ScreenRegistering
	} else if s.started {
		s.screen = ScreenActive
	} else {
		s.screen = ScreenWaiting
	}
	return s.screen
}

// ReturnToLanding resets the screen without clearing the registration, so
// re-entering the participant view skips the registration form.
func (s *SessionState) ReturnToLanding() {
	s.mu.Lock()
	s.screen = ScreenLanding
	s.mu.Unlock()
}

// Screen returns the current position in the participant flow.
func (s *SessionState) Screen() Screen {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.screen
}

// Snapshot returns a copy of the shared session state.
func (s *SessionState) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel receiving session snapshots on every change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionState) Subscribe() (<-chan domain.SessionSnapshot, func()) {
	ch := make(chan domain.SessionSnapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *SessionState) broadcastLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot so a slow consumer never blocks the rest.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *SessionState) snapshotLocked() domain.SessionSnapshot {
	teams := make([]domain.Team, len(s.teams))
	copy(teams, s.teams)

	var registered *domain.RegisteredStudent
	if s.registered != nil {
		studentCopy := *s.registered
		registered = &studentCopy
	}

	return domain.SessionSnapshot{
		SessionID:         s.sessionID,
		Teams:             teams,
		TimeLeft:          s.timeLeft,
		IsSessionStarted:  s.started,
		RegisteredStudent: registered,
		UpdatedAt:         s.now(),
	}
}
