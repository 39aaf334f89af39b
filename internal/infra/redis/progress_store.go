package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"hackathon-session-service/internal/app"
	"hackathon-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ProgressStore keeps per-user progress as JSON values in Redis, one key per
// track. When a backing store is configured Redis acts as a read cache with
// write-through: writes must land in the backing store to count as success,
// the cache refresh afterwards is best-effort. Without a backing store Redis
// is the durable layer itself.
type ProgressStore struct {
	client  *redis.Client
	backing app.ProgressStore
	ttl     time.Duration
	sf      singleflight.Group
	rnd     *rand.Rand
}

// NewProgressStore builds a Redis progress store; backing may be nil.
func NewProgressStore(client *redis.Client, backing app.ProgressStore, ttl time.Duration) *ProgressStore {
	return &ProgressStore{
		client:  client,
		backing: backing,
		ttl:     ttl,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *ProgressStore) FetchUserByID(ctx context.Context, userID string) (domain.UserRecord, error) {
	record, practiceOK, hackathonOK := s.readCached(ctx, userID)

	if s.backing == nil {
		// Redis is the durable layer; a missing key genuinely means empty.
		if practiceOK || hackathonOK {
			return record, nil
		}
		return domain.UserRecord{}, domain.ErrUserNotFound
	}

	// With a backing store a hit needs BOTH track keys: the persist methods
	// refresh one key at a time and TTLs expire independently, so a single
	// present key says nothing about the other track.
	if practiceOK && hackathonOK {
		return record, nil
	}

	result, err, _ := s.sf.Do(userID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if record, practiceOK, hackathonOK := s.readCached(ctx, userID); practiceOK && hackathonOK {
			return record, nil
		}

		record, err := s.backing.FetchUserByID(ctx, userID)
		if err != nil {
			return domain.UserRecord{}, err
		}
		s.fillCache(ctx, record)
		return record, nil
	})
	if err != nil {
		return domain.UserRecord{}, err
	}
	return result.(domain.UserRecord), nil
}

func (s *ProgressStore) PersistPracticeProgress(ctx context.Context, userID string, practice map[int]domain.PracticeItemProgress) error {
	payload, err := json.Marshal(practice)
	if err != nil {
		return fmt.Errorf("marshal practice: %w", err)
	}

	if s.backing != nil {
		if err := s.backing.PersistPracticeProgress(ctx, userID, practice); err != nil {
			return err
		}
		_ = s.client.Set(ctx, s.practiceKey(userID), payload, s.ttlWithJitter()).Err()
		return nil
	}
	return s.client.Set(ctx, s.practiceKey(userID), payload, s.ttlWithJitter()).Err()
}

func (s *ProgressStore) PersistHackathonProgress(ctx context.Context, userID string, hackathon domain.HackathonProgress) error {
	payload, err := json.Marshal(hackathon)
	if err != nil {
		return fmt.Errorf("marshal hackathon: %w", err)
	}

	if s.backing != nil {
		if err := s.backing.PersistHackathonProgress(ctx, userID, hackathon); err != nil {
			return err
		}
		_ = s.client.Set(ctx, s.hackathonKey(userID), payload, s.ttlWithJitter()).Err()
		return nil
	}
	return s.client.Set(ctx, s.hackathonKey(userID), payload, s.ttlWithJitter()).Err()
}

func (s *ProgressStore) readCached(ctx context.Context, userID string) (domain.UserRecord, bool, bool) {
	record := domain.UserRecord{ID: userID}
	practiceOK := false
	hackathonOK := false

	if raw, err := s.client.Get(ctx, s.practiceKey(userID)).Bytes(); err == nil {
		if err := json.Unmarshal(raw, &record.Practice); err == nil {
			practiceOK = true
		}
	}
	if raw, err := s.client.Get(ctx, s.hackathonKey(userID)).Bytes(); err == nil {
		if err := json.Unmarshal(raw, &record.Hackathon); err == nil {
			hackathonOK = true
		}
	}
	return record, practiceOK, hackathonOK
}

func (s *ProgressStore) fillCache(ctx context.Context, record domain.UserRecord) {
	ttl := s.ttlWithJitter()
	pipe := s.client.Pipeline()
	if payload, err := json.Marshal(record.Practice); err == nil {
		pipe.Set(ctx, s.practiceKey(record.ID), payload, ttl)
	}
	if payload, err := json.Marshal(record.Hackathon); err == nil {
		pipe.Set(ctx, s.hackathonKey(record.ID), payload, ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (s *ProgressStore) practiceKey(userID string) string {
	return "progress:" + userID + ":practice"
}

func (s *ProgressStore) hackathonKey(userID string) string {
	return "progress:" + userID + ":hackathon"
}

func (s *ProgressStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
