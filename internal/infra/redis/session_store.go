package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"hackathon-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps session-scoped records in Redis: teams as a hash per
// session, registrations as one key per session/user pair, plus a liveness
// marker. Team writes are read-modify-write with no CAS; concurrent clients
// racing on the same team are last-write-wins.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) FetchSessionTeams(ctx context.Context, sessionID string) ([]domain.Team, error) {
	raw, err := s.client.HGetAll(ctx, s.teamsKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("fetch teams: %w", err)
	}
	teams := make([]domain.Team, 0, len(raw))
	for _, payload := range raw {
		var team domain.Team
		if err := json.Unmarshal([]byte(payload), &team); err != nil {
			return nil, fmt.Errorf("unmarshal team: %w", err)
		}
		teams = append(teams, team)
	}
	sortTeams(teams)
	return teams, nil
}

func (s *SessionStore) SaveTeam(ctx context.Context, sessionID string, team domain.Team) error {
	payload, err := json.Marshal(team)
	if err != nil {
		return fmt.Errorf("marshal team: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.teamsKey(sessionID), team.ID, payload)
	pipe.Set(ctx, s.liveKey(sessionID), "1", s.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// SeedTeams installs a full team list, replacing any previous one.
func (s *SessionStore) SeedTeams(ctx context.Context, sessionID string, teams []domain.Team) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.teamsKey(sessionID))
	for _, team := range teams {
		payload, err := json.Marshal(team)
		if err != nil {
			return fmt.Errorf("marshal team: %w", err)
		}
		pipe.HSet(ctx, s.teamsKey(sessionID), team.ID, payload)
	}
	pipe.Set(ctx, s.liveKey(sessionID), "1", s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *SessionStore) FetchRegisteredStudent(ctx context.Context, sessionID, userID string) (domain.RegisteredStudent, error) {
	raw, err := s.client.Get(ctx, s.studentKey(sessionID, userID)).Bytes()
	if err == redis.Nil {
		return domain.RegisteredStudent{}, domain.ErrStudentNotFound
	}
	if err != nil {
		return domain.RegisteredStudent{}, fmt.Errorf("fetch student: %w", err)
	}
	var student domain.RegisteredStudent
	if err := json.Unmarshal(raw, &student); err != nil {
		return domain.RegisteredStudent{}, fmt.Errorf("unmarshal student: %w", err)
	}
	return student, nil
}

func (s *SessionStore) SaveRegisteredStudent(ctx context.Context, sessionID string, student domain.RegisteredStudent) error {
	payload, err := json.Marshal(student)
	if err != nil {
		return fmt.Errorf("marshal student: %w", err)
	}
	return s.client.Set(ctx, s.studentKey(sessionID, student.ID), payload, 0).Err()
}

func (s *SessionStore) teamsKey(sessionID string) string {
	return "session:" + sessionID + ":teams"
}

func (s *SessionStore) studentKey(sessionID, userID string) string {
	return "session:" + sessionID + ":student:" + userID
}

func (s *SessionStore) liveKey(sessionID string) string {
	return "session:" + sessionID
}

// Hash iteration order is random; keep the sequence stable for views.
func sortTeams(teams []domain.Team) {
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
}
