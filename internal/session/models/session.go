package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TypeConversation is the session type used by the query pipeline.
const TypeConversation = "AI_CONVERSATION"

// Session is short-lived conversational state. Data values are opaque JSON.
type Session struct {
	ID             uuid.UUID
	UserID         string
	Type           string
	Data           map[string]json.RawMessage
	CreatedAt      time.Time
	LastAccessedAt time.Time
	TTL            time.Duration
}

func New(id uuid.UUID, userID, sessionType string, ttl time.Duration, now time.Time) *Session {
	return &Session{
		ID:             id,
		UserID:         userID,
		Type:           sessionType,
		Data:           map[string]json.RawMessage{},
		CreatedAt:      now,
		LastAccessedAt: now,
		TTL:            ttl,
	}
}

// ExpiresAt is the instant the session becomes unreachable without renewed access.
func (s *Session) ExpiresAt() time.Time {
	return s.LastAccessedAt.Add(s.TTL)
}

// ExpiredAt reports whether the session is unreachable at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt())
}

// Touch moves LastAccessedAt forward; it never moves backwards.
func (s *Session) Touch(now time.Time) {
	if now.After(s.LastAccessedAt) {
		s.LastAccessedAt = now
	}
}

func (s *Session) Clone() *Session {
	c := *s
	c.Data = make(map[string]json.RawMessage, len(s.Data))
	for k, v := range s.Data {
		c.Data[k] = append(json.RawMessage(nil), v...)
	}
	return &c
}
