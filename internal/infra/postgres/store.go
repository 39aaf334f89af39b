package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"hackathon-session-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Store is the durable Postgres implementation of app.ProgressStore and
// app.SessionStore. Progress tracks, teams and registrations are stored as
// JSONB payloads keyed by their identifiers.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) FetchUserByID(ctx context.Context, userID string) (domain.UserRecord, error) {
	record := domain.UserRecord{ID: userID}

	var role string
	err := s.pool.QueryRow(ctx, `SELECT role FROM users WHERE id=$1`, userID).Scan(&role)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.UserRecord{}, fmt.Errorf("fetch user: %w", err)
	}
	userFound := err == nil
	record.Role = domain.Role(role)

	rows, err := s.pool.Query(ctx, `SELECT track, data FROM user_progress WHERE user_id=$1`, userID)
	if err != nil {
		return domain.UserRecord{}, fmt.Errorf("fetch progress: %w", err)
	}
	defer rows.Close()

	progressFound := false
	for rows.Next() {
		var track string
		var raw []byte
		if err := rows.Scan(&track, &raw); err != nil {
			return domain.UserRecord{}, fmt.Errorf("scan progress: %w", err)
		}
		switch domain.Track(track) {
		case domain.TrackPractice:
			if err := json.Unmarshal(raw, &record.Practice); err != nil {
				return domain.UserRecord{}, fmt.Errorf("unmarshal practice: %w", err)
			}
		case domain.TrackHackathon:
			if err := json.Unmarshal(raw, &record.Hackathon); err != nil {
				return domain.UserRecord{}, fmt.Errorf("unmarshal hackathon: %w", err)
			}
		}
		progressFound = true
	}
	if err := rows.Err(); err != nil {
		return domain.UserRecord{}, fmt.Errorf("fetch progress: %w", err)
	}

	if !userFound && !progressFound {
		return domain.UserRecord{}, domain.ErrUserNotFound
	}
	return record, nil
}

func (s *Store) PersistPracticeProgress(ctx context.Context, userID string, practice map[int]domain.PracticeItemProgress) error {
	return s.persistTrack(ctx, userID, domain.TrackPractice, practice)
}

func (s *Store) PersistHackathonProgress(ctx context.Context, userID string, hackathon domain.HackathonProgress) error {
	return s.persistTrack(ctx, userID, domain.TrackHackathon, hackathon)
}

func (s *Store) persistTrack(ctx context.Context, userID string, track domain.Track, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", track, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_progress (user_id, track, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, track) DO UPDATE SET data=EXCLUDED.data, updated_at=now()`,
		userID, string(track), payload)
	if err != nil {
		return fmt.Errorf("persist %s: %w", track, err)
	}
	return nil
}

func (s *Store) FetchSessionTeams(ctx context.Context, sessionID string) ([]domain.Team, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM teams WHERE session_id=$1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch teams: %w", err)
	}
	defer rows.Close()

	var teams []domain.Team
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		var team domain.Team
		if err := json.Unmarshal(raw, &team); err != nil {
			return nil, fmt.Errorf("unmarshal team: %w", err)
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func (s *Store) SaveTeam(ctx context.Context, sessionID string, team domain.Team) error {
	payload, err := json.Marshal(team)
	if err != nil {
		return fmt.Errorf("marshal team: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO teams (session_id, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, id) DO UPDATE SET data=EXCLUDED.data`,
		sessionID, team.ID, payload)
	if err != nil {
		return fmt.Errorf("save team: %w", err)
	}
	return nil
}

func (s *Store) FetchRegisteredStudent(ctx context.Context, sessionID, userID string) (domain.RegisteredStudent, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM registrations WHERE session_id=$1 AND user_id=$2`,
		sessionID, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RegisteredStudent{}, domain.ErrStudentNotFound
	}
	if err != nil {
		return domain.RegisteredStudent{}, fmt.Errorf("fetch registration: %w", err)
	}
	var student domain.RegisteredStudent
	if err := json.Unmarshal(raw, &student); err != nil {
		return domain.RegisteredStudent{}, fmt.Errorf("unmarshal registration: %w", err)
	}
	return student, nil
}

func (s *Store) SaveRegisteredStudent(ctx context.Context, sessionID string, student domain.RegisteredStudent) error {
	payload, err := json.Marshal(student)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO registrations (session_id, user_id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, user_id) DO UPDATE SET data=EXCLUDED.data`,
		sessionID, student.ID, payload)
	if err != nil {
		return fmt.Errorf("save registration: %w", err)
	}
	return nil
}
