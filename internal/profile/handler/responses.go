package handler

import (
	"encoding/json"
	"time"

	"bankguard/internal/profile/models"
	"bankguard/internal/profile/service"
)

type ProfileResponse struct {
	ID             string          `json:"id"`
	CustomerID     string          `json:"customerId"`
	FirstName      string          `json:"firstName,omitempty"`
	LastName       string          `json:"lastName,omitempty"`
	Email          string          `json:"email,omitempty"`
	PhoneNumber    string          `json:"phoneNumber,omitempty"`
	Preferences    json.RawMessage `json:"preferences,omitempty"`
	FinancialData  json.RawMessage `json:"financialData,omitempty"`
	BehavioralData json.RawMessage `json:"behavioralData,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	RetentionUntil time.Time       `json:"retentionUntil"`
}

func FromProfile(p *models.Profile) *ProfileResponse {
	return &ProfileResponse{
		ID:             p.ID.String(),
		CustomerID:     p.CustomerID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		Email:          p.Email,
		PhoneNumber:    p.PhoneNumber,
		Preferences:    p.Preferences,
		FinancialData:  p.FinancialData,
		BehavioralData: p.BehavioralData,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
		RetentionUntil: p.RetentionUntil,
	}
}

// SimilarResponse is a profile with its distance to the query profile.
type SimilarResponse struct {
	*ProfileResponse
	Distance float64 `json:"distance"`
}

func FromSimilar(similar []service.Similar) []*SimilarResponse {
	out := make([]*SimilarResponse, 0, len(similar))
	for _, s := range similar {
		out = append(out, &SimilarResponse{ProfileResponse: FromProfile(s.Profile), Distance: s.Distance})
	}
	return out
}
