// Package models defines customer profiles kept in similarity-indexed memory.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	memorymodels "bankguard/internal/memory/models"
	dErrors "bankguard/pkg/domain-errors"
)

// Profile is the structured payload of a profile memory record. Identity and
// lifecycle timestamps belong to the record and are not serialized.
type Profile struct {
	ID             uuid.UUID       `json:"-"`
	CustomerID     string          `json:"customerId"`
	FirstName      string          `json:"firstName,omitempty"`
	LastName       string          `json:"lastName,omitempty"`
	Email          string          `json:"email,omitempty"`
	PhoneNumber    string          `json:"phoneNumber,omitempty"`
	Preferences    json.RawMessage `json:"preferences,omitempty"`
	FinancialData  json.RawMessage `json:"financialData,omitempty"`
	BehavioralData json.RawMessage `json:"behavioralData,omitempty"`
	CreatedAt      time.Time       `json:"-"`
	UpdatedAt      time.Time       `json:"-"`
	RetentionUntil time.Time       `json:"-"`
}

func (p *Profile) Kind() memorymodels.Kind { return memorymodels.KindProfile }
func (p *Profile) NaturalKey() string      { return p.CustomerID }
func (p *Profile) Owner() string           { return p.CustomerID }

// Fields lists the embedded attributes. Phone numbers are left out of the
// embedding.
func (p *Profile) Fields() []memorymodels.Field {
	return []memorymodels.Field{
		{Name: "Customer ID", Value: p.CustomerID},
		{Name: "First Name", Value: p.FirstName},
		{Name: "Last Name", Value: p.LastName},
		{Name: "Email", Value: p.Email},
		{Name: "Preferences", Value: string(p.Preferences)},
		{Name: "Financial Data", Value: string(p.FinancialData)},
		{Name: "Behavioral Data", Value: string(p.BehavioralData)},
	}
}

// Spec carries the caller-editable profile fields.
type Spec struct {
	CustomerID     string
	FirstName      string
	LastName       string
	Email          string
	PhoneNumber    string
	Preferences    json.RawMessage
	FinancialData  json.RawMessage
	BehavioralData json.RawMessage
}

// Apply replaces every editable field except the customer id. JSON sections
// are canonicalized so equal content always embeds the same way.
func (p *Profile) Apply(spec Spec) error {
	var err error
	p.FirstName = spec.FirstName
	p.LastName = spec.LastName
	p.Email = spec.Email
	p.PhoneNumber = spec.PhoneNumber
	if p.Preferences, err = CanonicalObject("preferences", spec.Preferences); err != nil {
		return err
	}
	if p.FinancialData, err = CanonicalObject("financialData", spec.FinancialData); err != nil {
		return err
	}
	p.BehavioralData, err = CanonicalObject("behavioralData", spec.BehavioralData)
	return err
}

// CanonicalObject re-encodes a JSON object with sorted keys and no
// insignificant whitespace. Empty and null input yield nil.
func CanonicalObject(field string, raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var obj map[string]any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil || dec.More() || obj == nil {
		return nil, dErrors.New(dErrors.CodeValidation, field+" must be a JSON object")
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", field, err)
	}
	return out, nil
}

// FromRecord decodes a profile record and copies the record's identity and
// lifecycle onto it.
func FromRecord(rec *memorymodels.Record) (*Profile, error) {
	if rec.Kind != memorymodels.KindProfile {
		return nil, dErrors.New(dErrors.CodeNotFound, "profile not found")
	}
	var p Profile
	if err := json.Unmarshal(rec.Payload, &p); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode profile")
	}
	p.ID = rec.ID
	p.CreatedAt = rec.CreatedAt
	p.UpdatedAt = rec.UpdatedAt
	p.RetentionUntil = rec.RetentionUntil
	return &p, nil
}
