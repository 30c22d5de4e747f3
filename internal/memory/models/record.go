// Package models defines similarity-indexed memory records.
package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "bankguard/pkg/domain-errors"
)

// Kind partitions the memory. Searches never cross kinds.
type Kind string

const (
	KindProfile     Kind = "profile"
	KindTransaction Kind = "transaction"
)

// Field is one named value of a document's canonical text.
type Field struct {
	Name  string
	Value string
}

// Document is a structured value that can be embedded and stored. Fields
// must return the same names in the same order for every value of a type.
type Document interface {
	Kind() Kind
	NaturalKey() string
	Owner() string
	Fields() []Field
}

// CanonicalText renders fields as "Name: Value." sentences in order, skipping
// empty values. Equal fields always produce equal text.
func CanonicalText(fields []Field) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		value := strings.TrimSpace(f.Value)
		if value == "" {
			continue
		}
		parts = append(parts, f.Name+": "+value+".")
	}
	return strings.Join(parts, " ")
}

// Record is a stored document with its embedding.
type Record struct {
	ID             uuid.UUID
	Kind           Kind
	NaturalKey     string
	Owner          string
	Content        string
	Payload        json.RawMessage
	Embedding      []float32
	CreatedAt      time.Time
	UpdatedAt      time.Time
	RetentionUntil time.Time
}

// ExtendRetention pushes RetentionUntil forward by whole years and touches
// nothing else, UpdatedAt included.
func (r *Record) ExtendRetention(years int) error {
	if years <= 0 {
		return dErrors.New(dErrors.CodeValidation, "years must be positive")
	}
	r.RetentionUntil = r.RetentionUntil.AddDate(years, 0, 0)
	return nil
}

// ExpiredAt reports whether the retention deadline has passed.
func (r *Record) ExpiredAt(now time.Time) bool {
	return now.After(r.RetentionUntil)
}

func (r *Record) Clone() *Record {
	c := *r
	c.Payload = append(json.RawMessage(nil), r.Payload...)
	c.Embedding = append([]float32(nil), r.Embedding...)
	return &c
}

// Match is a search hit and its distance to the query.
type Match struct {
	Record   *Record
	Distance float64
}
