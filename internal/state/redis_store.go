package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// riskKeyPrefix is the Redis key prefix for daily risk records.
// Format: risk:state:{ticker}:{date}
const riskKeyPrefix = "risk:state"

// redisOpTimeout bounds every Redis round trip so a slow server cannot
// stall a trading cycle.
const redisOpTimeout = 2 * time.Second

// RedisStore keeps daily risk records in Redis with a retention TTL.
// When Redis is unavailable the store falls back to an in-memory cache so
// trading continues; the durable copy catches up on the next successful
// save.
type RedisStore struct {
	client    *redis.Client
	ticker    string
	log       zerolog.Logger
	cache     map[string]DailyRecord
	cacheMu   sync.RWMutex
	available atomic.Bool
}

// NewRedisStore creates a Redis-backed store scoped to one instrument.
func NewRedisStore(client *redis.Client, ticker string, log zerolog.Logger) *RedisStore {
	s := &RedisStore{
		client: client,
		ticker: ticker,
		log:    log.With().Str("component", "state_redis").Str("ticker", ticker).Logger(),
		cache:  map[string]DailyRecord{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Redis unavailable at startup, using in-memory cache")
		s.available.Store(false)
	} else {
		s.available.Store(true)
	}
	return s
}

func (s *RedisStore) key(date string) string {
	return fmt.Sprintf("%s:%s:%s", riskKeyPrefix, s.ticker, date)
}

// Load returns the record for a date, or zero defaults when missing,
// unreadable, or Redis is down.
func (s *RedisStore) Load(date string) (DailyRecord, error) {
	if !s.available.Load() {
		s.cacheMu.RLock()
		defer s.cacheMu.RUnlock()
		return s.cache[date], nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.key(date)).Bytes()
	if err == redis.Nil {
		return DailyRecord{}, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("Redis read failed, falling back to cache")
		s.available.Store(false)
		s.cacheMu.RLock()
		defer s.cacheMu.RUnlock()
		return s.cache[date], nil
	}

	var rec DailyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Warn().Err(err).Str("date", date).Msg("Corrupted risk record, using defaults")
		return DailyRecord{}, nil
	}
	return rec, nil
}

// LoadWeek returns the retention window ending at end, oldest first.
func (s *RedisStore) LoadWeek(end time.Time) ([]DailyRecord, error) {
	week := make([]DailyRecord, 0, RetentionDays)
	for _, date := range WindowDates(end) {
		rec, err := s.Load(date)
		if err != nil {
			return nil, err
		}
		week = append(week, rec)
	}
	return week, nil
}

// Save stores the record with the retention TTL. The in-memory cache is
// always updated first so a Redis outage never loses the current state.
func (s *RedisStore) Save(date string, rec DailyRecord) error {
	s.cacheMu.Lock()
	s.cache[date] = rec
	for key := range s.cache {
		if key < date && olderThanRetention(key, date) {
			delete(s.cache, key)
		}
	}
	s.cacheMu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal risk record: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	ttl := time.Duration(RetentionDays) * 24 * time.Hour
	if err := s.client.Set(ctx, s.key(date), data, ttl).Err(); err != nil {
		s.available.Store(false)
		return fmt.Errorf("failed to save risk record to redis: %w", err)
	}
	s.available.Store(true)
	return nil
}

func olderThanRetention(key, current string) bool {
	day, err := time.Parse(DateFormat, key)
	if err != nil {
		return true
	}
	now, err := time.Parse(DateFormat, current)
	if err != nil {
		return false
	}
	return day.Before(now.AddDate(0, 0, -(RetentionDays - 1)))
}

// MemoryStore is a non-durable Store used by backtests and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]DailyRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]DailyRecord{}}
}

// Load returns the record for a date, or zero defaults.
func (s *MemoryStore) Load(date string) (DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[date], nil
}

// LoadWeek returns the retention window ending at end, oldest first.
func (s *MemoryStore) LoadWeek(end time.Time) ([]DailyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	week := make([]DailyRecord, 0, RetentionDays)
	for _, date := range WindowDates(end) {
		week = append(week, s.records[date])
	}
	return week, nil
}

// Save stores the record in memory.
func (s *MemoryStore) Save(date string, rec DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[date] = rec
	return nil
}
