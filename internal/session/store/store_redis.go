package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bankguard/internal/session/models"
	"bankguard/pkg/platform/sentinel"
)

const (
	sessionKeyPrefix   = "session:"
	userIndexKeyPrefix = "session:user:"
	dataFieldPrefix    = "data:"

	fieldUserID       = "user_id"
	fieldType         = "type"
	fieldCreatedAt    = "created_at"
	fieldLastAccessed = "last_accessed_at"
	fieldTTL          = "ttl_ms"

	// Fixed-width UTC timestamps compare correctly as strings inside Lua.
	timeLayout = "2006-01-02T15:04:05.000000000Z"

	sweepBatch = 200
)

// createScript writes a new session hash, its expiry and its user index entry
// in one step, or nothing when the id is taken.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('PEXPIRE', KEYS[1], ARGV[1])
redis.call('SADD', KEYS[2], ARGV[2])
return 1
`)

// mutateScript changes one data field of an existing session, moves the
// access time forward and refreshes the key expiry, all atomically.
var mutateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if ARGV[1] == 'set' then
  redis.call('HSET', KEYS[1], ARGV[2], ARGV[3])
else
  redis.call('HDEL', KEYS[1], ARGV[2])
end
local last = redis.call('HGET', KEYS[1], 'last_accessed_at')
if not last or ARGV[4] > last then
  redis.call('HSET', KEYS[1], 'last_accessed_at', ARGV[4])
end
redis.call('PEXPIRE', KEYS[1], redis.call('HGET', KEYS[1], 'ttl_ms'))
return 1
`)

// RedisStore keeps each session in a hash with one field per data key, so
// concurrent writers to different keys never overwrite each other. Redis key
// expiry removes idle sessions; DeleteExpired is the backstop.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(id uuid.UUID) string {
	return sessionKeyPrefix + id.String()
}

func userIndexKey(userID string) string {
	return userIndexKeyPrefix + userID
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	args := []any{
		session.TTL.Milliseconds(),
		session.ID.String(),
		fieldUserID, session.UserID,
		fieldType, session.Type,
		fieldCreatedAt, formatTime(session.CreatedAt),
		fieldLastAccessed, formatTime(session.LastAccessedAt),
		fieldTTL, session.TTL.Milliseconds(),
	}
	for k, v := range session.Data {
		args = append(args, dataFieldPrefix+k, string(v))
	}

	created, err := createScript.Run(ctx, s.client,
		[]string{sessionKey(session.ID), userIndexKey(session.UserID)}, args...).Int()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if created == 0 {
		return sentinel.ErrDuplicate
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return decodeSession(id, fields)
}

func (s *RedisStore) SetData(ctx context.Context, id uuid.UUID, key string, value json.RawMessage, now time.Time) (*models.Session, error) {
	return s.mutate(ctx, id, "set", key, string(value), now)
}

func (s *RedisStore) RemoveData(ctx context.Context, id uuid.UUID, key string, now time.Time) (*models.Session, error) {
	return s.mutate(ctx, id, "del", key, "", now)
}

func (s *RedisStore) mutate(ctx context.Context, id uuid.UUID, op, key, value string, now time.Time) (*models.Session, error) {
	ok, err := mutateScript.Run(ctx, s.client, []string{sessionKey(id)},
		op, dataFieldPrefix+key, value, formatTime(now)).Int()
	if err != nil {
		return nil, fmt.Errorf("update session data: %w", err)
	}
	if ok == 0 {
		return nil, sentinel.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	key := sessionKey(id)
	userID, err := s.client.HGet(ctx, key, fieldUserID).Result()
	if errors.Is(err, redis.Nil) {
		return sentinel.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, userIndexKey(userID), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListForUser returns the user's sessions, oldest first, and prunes index
// entries whose hash has already expired.
func (s *RedisStore) ListForUser(ctx context.Context, userID string) ([]*models.Session, error) {
	ids, err := s.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, raw := range ids {
			cmds[i] = pipe.HGetAll(ctx, sessionKeyPrefix+raw)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	var (
		out   []*models.Session
		stale []any
	)
	for i, cmd := range cmds {
		id, parseErr := uuid.Parse(ids[i])
		fields := cmd.Val()
		if parseErr != nil || len(fields) == 0 {
			stale = append(stale, ids[i])
			continue
		}
		session, err := decodeSession(id, fields)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, userIndexKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune session index: %w", err)
		}
	}
	sortByCreation(out)
	return out, nil
}

func (s *RedisStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	indexKey := userIndexKey(userID)
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, sessionKeyPrefix+id)
	}

	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete user sessions: %w", err)
	}
	if deleted == nil {
		return 0, nil
	}
	return int(deleted.Val()), nil
}

// DeleteExpired scans every session hash and removes the ones idle past their
// TTL as of now.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.client.ScanType(ctx, cursor, sessionKeyPrefix+"*", sweepBatch, "hash").Result()
		if err != nil {
			return removed, fmt.Errorf("scan sessions: %w", err)
		}
		for _, key := range keys {
			n, err := s.deleteIfExpired(ctx, key, now)
			if err != nil {
				return removed, err
			}
			removed += n
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// deleteIfExpired removes the hash when it is idle past its TTL, or when its
// bookkeeping fields cannot be read, since Get would fail on it forever.
func (s *RedisStore) deleteIfExpired(ctx context.Context, key string, now time.Time) (int, error) {
	vals, err := s.client.HMGet(ctx, key, fieldUserID, fieldLastAccessed, fieldTTL).Result()
	if err != nil {
		return 0, fmt.Errorf("read session %s: %w", key, err)
	}
	userID, _ := vals[0].(string)
	lastRaw, _ := vals[1].(string)
	ttlRaw, _ := vals[2].(string)
	if userID == "" && lastRaw == "" && ttlRaw == "" {
		// Expired by Redis between SCAN and HMGET.
		return 0, nil
	}
	last, lastErr := time.Parse(timeLayout, lastRaw)
	ttlMs, ttlErr := strconv.ParseInt(ttlRaw, 10, 64)
	if lastErr == nil && ttlErr == nil && now.Before(last.Add(time.Duration(ttlMs)*time.Millisecond)) {
		return 0, nil
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if userID != "" {
			pipe.SRem(ctx, userIndexKey(userID), strings.TrimPrefix(key, sessionKeyPrefix))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete expired session %s: %w", key, err)
	}
	return 1, nil
}

func decodeSession(id uuid.UUID, fields map[string]string) (*models.Session, error) {
	createdAt, err := time.Parse(timeLayout, fields[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("decode session %s created_at: %w", id, err)
	}
	lastAccessed, err := time.Parse(timeLayout, fields[fieldLastAccessed])
	if err != nil {
		return nil, fmt.Errorf("decode session %s last_accessed_at: %w", id, err)
	}
	ttlMs, err := strconv.ParseInt(fields[fieldTTL], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode session %s ttl: %w", id, err)
	}

	session := &models.Session{
		ID:             id,
		UserID:         fields[fieldUserID],
		Type:           fields[fieldType],
		Data:           map[string]json.RawMessage{},
		CreatedAt:      createdAt,
		LastAccessedAt: lastAccessed,
		TTL:            time.Duration(ttlMs) * time.Millisecond,
	}
	for field, value := range fields {
		if key, ok := strings.CutPrefix(field, dataFieldPrefix); ok {
			session.Data[key] = json.RawMessage(value)
		}
	}
	return session, nil
}
