package handler

import (
	"encoding/json"
	"time"

	"bankguard/internal/session/models"
)

type SessionResponse struct {
	ID             string                     `json:"id"`
	UserID         string                     `json:"userId"`
	SessionType    string                     `json:"sessionType"`
	Data           map[string]json.RawMessage `json:"data"`
	CreatedAt      time.Time                  `json:"createdAt"`
	LastAccessedAt time.Time                  `json:"lastAccessedAt"`
	TimeToLive     int64                      `json:"timeToLive"`
	ExpiresAt      time.Time                  `json:"expiresAt"`
}

// FromSession reports the TTL in minutes.
func FromSession(s *models.Session) *SessionResponse {
	return &SessionResponse{
		ID:             s.ID.String(),
		UserID:         s.UserID,
		SessionType:    s.Type,
		Data:           s.Data,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessedAt,
		TimeToLive:     int64(s.TTL / time.Minute),
		ExpiresAt:      s.ExpiresAt(),
	}
}

func FromSessions(sessions []*models.Session) []*SessionResponse {
	out := make([]*SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, FromSession(s))
	}
	return out
}
