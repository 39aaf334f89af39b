package app_test

import (
	"context"
	"testing"

	"hackathon-session-service/internal/app"
	"hackathon-session-service/internal/domain"
	"hackathon-session-service/internal/infra/memory"
)

func newTestSession(t *testing.T, durationSeconds int) (*app.SessionState, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	store.SeedTeams("session-1", []domain.Team{
		{ID: "team-a", Name: "Alpha"},
		{ID: "team-b", Name: "Beta"},
	})
	state := app.NewSessionState(store, "session-1", durationSeconds)
	if err := state.LoadTeams(context.Background()); err != nil {
		t.Fatalf("load teams: %v", err)
	}
	return state, store
}

func TestRegisterStudentValidation(t *testing.T) {
	ctx := context.Background()
	state, _ := newTestSession(t, 3600)

	err := state.RegisterStudent(ctx, domain.RegisteredStudent{ID: "u1", Name: "", TeamID: "team-a"})
	if err != domain.ErrInvalidRegistration {
		t.Fatalf("expected invalid registration for empty name, got %v", err)
	}

	err = state.RegisterStudent(ctx, domain.RegisteredStudent{ID: "u1", Name: "Alice", TeamID: "team-zzz"})
	if err != domain.ErrInvalidRegistration {
		t.Fatalf("expected invalid registration for unknown team, got %v", err)
	}
	if snap := state.Snapshot(); snap.RegisteredStudent != nil {
		t.Fatalf("expected no registration after failures, got %+v", snap.RegisteredStudent)
	}
}

func TestRegisterStudentJoinsTeam(t *testing.T) {
	ctx := context.Background()
	state, store := newTestSession(t, 3600)

	err := state.RegisterStudent(ctx, domain.RegisteredStudent{ID: "u1", Name: "Alice", TeamID: "team-a"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	snap := state.Snapshot()
	if snap.RegisteredStudent == nil || snap.RegisteredStudent.ID != "u1" {
		t.Fatalf("expected registered student u1, got %+v", snap.RegisteredStudent)
	}
	if got := snap.Teams[0].StudentIDs; len(got) != 1 || got[0] != "u1" {
		t.Fatalf("expected team-a to contain u1, got %v", got)
	}
	if state.Screen() != app.ScreenWaiting {
		t.Fatalf("expected waiting screen, got %s", state.Screen())
	}

	// Registration is written through so other clients can hydrate it.
	if _, err := store.FetchRegisteredStudent(ctx, "session-1", "u1"); err != nil {
		t.Fatalf("expected durable registration, got %v", err)
	}
}

func TestTickRequiresStartedSession(t *testing.T) {
	state, _ := newTestSession(t, 10)

	state.Tick()
	if got := state.Snapshot().TimeLeft; got != 10 {
		t.Fatalf("expected timeLeft unchanged at 10, got %d", got)
	}

	state.Start()
	state.Tick()
	if got := state.Snapshot().TimeLeft; got != 9 {
		t.Fatalf("expected timeLeft 9, got %d", got)
	}
}

func TestTickStopsAtZero(t *testing.T) {
	state, _ := newTestSession(t, 1)
	state.Start()
	state.Tick()
	state.Tick()
	if got := state.Snapshot().TimeLeft; got != 0 {
		t.Fatalf("expected timeLeft floored at 0, got %d", got)
	}
}

func TestResolveViewRoleGuard(t *testing.T) {
	state, _ := newTestSession(t, 10)
	instructor := domain.User{ID: "i1", Role: domain.RoleInstructor}
	student := domain.User{ID: "u1", Role: domain.RoleStudent}

	if got := state.ResolveView(instructor, "student"); got != app.ViewLanding {
		t.Fatalf("instructor on student view should land on landing, got %s", got)
	}
	if got := state.ResolveView(student, "scoreboard"); got != app.ViewLanding {
		t.Fatalf("student on scoreboard should land on landing, got %s", got)
	}
	if got := state.ResolveView(student, "global"); got != app.ViewLanding {
		t.Fatalf("student on global should land on landing, got %s", got)
	}
	if got := state.ResolveView(student, "student"); got != app.ViewStudent {
		t.Fatalf("student on student view should pass, got %s", got)
	}
	if got := state.ResolveView(instructor, "scoreboard"); got != app.ViewScoreboard {
		t.Fatalf("instructor on scoreboard should pass, got %s", got)
	}
	if got := state.ResolveView(student, "does-not-exist"); got != app.ViewLanding {
		t.Fatalf("unknown view should fall back to landing, got %s", got)
	}
}

func TestEnterStudentViewShortCircuit(t *testing.T) {
	ctx := context.Background()
	state, store := newTestSession(t, 10)

	if screen := state.EnterStudentView(ctx, "u1"); screen != app.ScreenRegistering {
		t.Fatalf("expected registration form for new student, got %s", screen)
	}

	// A registration stored by a previous visit skips the form on re-entry.
	if err := store.SaveRegisteredStudent(ctx, "session-1", domain.RegisteredStudent{
		ID: "u2", Name: "Bob", TeamID: "team-b",
		Answers: map[int]string{}, HintsUsed: map[int]bool{},
	}); err != nil {
		t.Fatalf("seed registration: %v", err)
	}
	fresh := app.NewSessionState(store, "session-1", 10)
	if screen := fresh.EnterStudentView(ctx, "u2"); screen != app.ScreenWaiting {
		t.Fatalf("expected waiting on re-entry, got %s", screen)
	}

	fresh.Start()
	fresh.ReturnToLanding()
	if fresh.Screen() != app.ScreenLanding {
		t.Fatalf("expected landing after return, got %s", fresh.Screen())
	}
	if snap := fresh.Snapshot(); snap.RegisteredStudent == nil {
		t.Fatalf("return to landing must not clear the registration")
	}
	if screen := fresh.EnterStudentView(ctx, "u2"); screen != app.ScreenActive {
		t.Fatalf("expected active on re-entry after start, got %s", screen)
	}
}

func TestEnterStudentViewChecksIdentity(t *testing.T) {
	ctx := context.Background()
	state, store := newTestSession(t, 10)

	if err := state.RegisterStudent(ctx, domain.RegisteredStudent{
		ID: "uA", Name: "Alice", TeamID: "team-a",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Alice's registration must not short-circuit a different student.
	if screen := state.EnterStudentView(ctx, "uB"); screen != app.ScreenRegistering {
		t.Fatalf("expected registration form for uB, got %s", screen)
	}

	// With uB's own registration in the store, the short-circuit applies.
	if err := store.SaveRegisteredStudent(ctx, "session-1", domain.RegisteredStudent{
		ID: "uB", Name: "Bob", TeamID: "team-b",
		Answers: map[int]string{}, HintsUsed: map[int]bool{},
	}); err != nil {
		t.Fatalf("seed registration: %v", err)
	}
	if screen := state.EnterStudentView(ctx, "uB"); screen != app.ScreenWaiting {
		t.Fatalf("expected waiting for registered uB, got %s", screen)
	}
}

func TestApplyTeamScore(t *testing.T) {
	ctx := context.Background()
	state, _ := newTestSession(t, 10)

	if err := state.ApplyTeamScore(ctx, "team-a", 200, 2); err != nil {
		t.Fatalf("apply score: %v", err)
	}
	if err := state.ApplyTeamScore(ctx, "team-a", 100, 1); err != nil {
		t.Fatalf("apply score: %v", err)
	}

	team := state.Snapshot().Teams[0]
	if team.Score != 300 {
		t.Fatalf("expected team score 300, got %v", team.Score)
	}
	if team.CurrentLevel != 3 {
		t.Fatalf("team level must not regress, got %d", team.CurrentLevel)
	}

	if err := state.ApplyTeamScore(ctx, "team-zzz", 10, 0); err != domain.ErrTeamNotFound {
		t.Fatalf("expected team not found, got %v", err)
	}
}

func TestSubscribeReceivesTicks(t *testing.T) {
	state, _ := newTestSession(t, 10)
	ch, cancel := state.Subscribe()
	defer cancel()

	<-ch // initial snapshot
	state.Start()
	<-ch
	state.Tick()

	update := <-ch
	if update.TimeLeft != 9 || !update.IsSessionStarted {
		t.Fatalf("expected started snapshot with 9s left, got %+v", update)
	}
}
