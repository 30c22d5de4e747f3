package handler

import (
	"encoding/json"
	"strings"

	dErrors "bankguard/pkg/domain-errors"
)

type CreateSessionRequest struct {
	UserID      string `json:"userId"`
	SessionType string `json:"sessionType"`
}

func (r *CreateSessionRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	r.SessionType = strings.TrimSpace(r.SessionType)
}

func (r *CreateSessionRequest) Validate() error {
	if r.UserID == "" || r.SessionType == "" {
		return dErrors.New(dErrors.CodeValidation, "userId and sessionType are required")
	}
	return nil
}

// SessionDataRequest carries any JSON value under a key.
type SessionDataRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (r *SessionDataRequest) Normalize() {
	r.Key = strings.TrimSpace(r.Key)
}

func (r *SessionDataRequest) Validate() error {
	if r.Key == "" {
		return dErrors.New(dErrors.CodeValidation, "key is required")
	}
	if len(r.Value) == 0 {
		return dErrors.New(dErrors.CodeValidation, "value is required")
	}
	return nil
}
