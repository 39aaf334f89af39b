package redis

import (
	"context"
	"testing"
	"time"

	"hackathon-session-service/internal/domain"
)

func TestSessionStoreTeams(t *testing.T) {
	ctx := context.Background()
	client, mr := newClient(t)
	store := NewSessionStore(client, time.Minute)

	teams := []domain.Team{
		{ID: "team-b", Name: "Beta"},
		{ID: "team-a", Name: "Alpha"},
	}
	if err := store.SeedTeams(ctx, "s1", teams); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !mr.Exists("session:s1") {
		t.Fatalf("expected liveness marker")
	}

	got, err := store.FetchSessionTeams(ctx, "s1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 2 || got[0].ID != "team-a" || got[1].ID != "team-b" {
		t.Fatalf("expected stable id order, got %+v", got)
	}

	if err := store.SaveTeam(ctx, "s1", domain.Team{ID: "team-a", Name: "Alpha", Score: 150}); err != nil {
		t.Fatalf("save team: %v", err)
	}
	got, _ = store.FetchSessionTeams(ctx, "s1")
	if got[0].Score != 150 {
		t.Fatalf("expected updated score, got %+v", got[0])
	}
}

func TestSessionStoreRegistration(t *testing.T) {
	ctx := context.Background()
	client, _ := newClient(t)
	store := NewSessionStore(client, time.Minute)

	if _, err := store.FetchRegisteredStudent(ctx, "s1", "u1"); err != domain.ErrStudentNotFound {
		t.Fatalf("expected student not found, got %v", err)
	}

	student := domain.RegisteredStudent{
		ID: "u1", Name: "Alice", TeamID: "team-a",
		Answers:   map[int]string{2: "forty-two"},
		HintsUsed: map[int]bool{1: true},
	}
	if err := store.SaveRegisteredStudent(ctx, "s1", student); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.FetchRegisteredStudent(ctx, "s1", "u1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got.Answers[2] != "forty-two" || !got.HintsUsed[1] {
		t.Fatalf("answers/hints lost in round trip: %+v", got)
	}
}
