package memory

import (
	"context"
	"sync"

	"hackathon-session-service/internal/domain"
)

// Store is an in-memory implementation of app.ProgressStore and
// app.SessionStore, useful for tests and single-process demos.
type Store struct {
	mu       sync.RWMutex
	users    map[string]domain.UserRecord
	teams    map[string][]domain.Team
	students map[string]domain.RegisteredStudent
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.UserRecord),
		teams:    make(map[string][]domain.Team),
		students: make(map[string]domain.RegisteredStudent),
	}
}

// SeedUser installs a user record directly.
func (s *Store) SeedUser(record domain.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[record.ID] = record
}

// SeedTeams installs the team list for a session.
func (s *Store) SeedTeams(sessionID string, teams []domain.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[sessionID] = append([]domain.Team(nil), teams...)
}

func (s *Store) FetchUserByID(_ context.Context, userID string) (domain.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.users[userID]
	if !ok {
		return domain.UserRecord{}, domain.ErrUserNotFound
	}
	return record, nil
}

func (s *Store) PersistPracticeProgress(_ context.Context, userID string, practice map[int]domain.PracticeItemProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.users[userID]
	record.ID = userID
	record.Practice = practice
	s.users[userID] = record
	return nil
}

func (s *Store) PersistHackathonProgress(_ context.Context, userID string, hackathon domain.HackathonProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := s.users[userID]
	record.ID = userID
	record.Hackathon = hackathon
	s.users[userID] = record
	return nil
}

func (s *Store) FetchSessionTeams(_ context.Context, sessionID string) ([]domain.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Team(nil), s.teams[sessionID]...), nil
}

func (s *Store) FetchRegisteredStudent(_ context.Context, sessionID, userID string) (domain.RegisteredStudent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	student, ok := s.students[studentKey(sessionID, userID)]
	if !ok {
		return domain.RegisteredStudent{}, domain.ErrStudentNotFound
	}
	return student, nil
}

func (s *Store) SaveRegisteredStudent(_ context.Context, sessionID string, student domain.RegisteredStudent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[studentKey(sessionID, student.ID)] = student
	return nil
}

func (s *Store) SaveTeam(_ context.Context, sessionID string, team domain.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	teams := s.teams[sessionID]
	for i := range teams {
		if teams[i].ID == team.ID {
			teams[i] = team
			return nil
		}
	}
	s.teams[sessionID] = append(teams, team)
	return nil
}

func studentKey(sessionID, userID string) string {
	return sessionID + "|" + userID
}
