package handler

import (
	"encoding/json"
	"strings"

	"bankguard/internal/profile/models"
	dErrors "bankguard/pkg/domain-errors"
)

// ProfileRequest is the body of profile create and update. customerId is
// ignored on update.
type ProfileRequest struct {
	CustomerID     string          `json:"customerId"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	Email          string          `json:"email"`
	PhoneNumber    string          `json:"phoneNumber"`
	Preferences    json.RawMessage `json:"preferences"`
	FinancialData  json.RawMessage `json:"financialData"`
	BehavioralData json.RawMessage `json:"behavioralData"`
}

func (r *ProfileRequest) Normalize() {
	r.CustomerID = strings.TrimSpace(r.CustomerID)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
}

func (r *ProfileRequest) Spec() models.Spec {
	return models.Spec{
		CustomerID:     r.CustomerID,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		Email:          r.Email,
		PhoneNumber:    r.PhoneNumber,
		Preferences:    r.Preferences,
		FinancialData:  r.FinancialData,
		BehavioralData: r.BehavioralData,
	}
}

type RetentionRequest struct {
	Years int `json:"years"`
}

func (r *RetentionRequest) Validate() error {
	if r.Years <= 0 {
		return dErrors.New(dErrors.CodeValidation, "years must be positive")
	}
	return nil
}
