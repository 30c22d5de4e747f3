// Package kafka streams stored audit records to a Kafka topic for downstream
// consumers such as a SIEM.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	audit "bankguard/pkg/platform/audit"
)

// Producer is satisfied by internal/platform/kafka.Producer.
type Producer interface {
	Produce(ctx context.Context, key, value []byte) error
}

// Sink implements audit.Sink. Records are keyed by actor so one actor's
// history stays ordered within a partition.
type Sink struct {
	producer Producer
}

func NewSink(producer Producer) *Sink {
	return &Sink{producer: producer}
}

type payload struct {
	ID            string    `json:"id"`
	Category      string    `json:"category"`
	Actor         string    `json:"actor"`
	Action        string    `json:"action"`
	ResourceType  string    `json:"resource_type,omitempty"`
	ResourceID    string    `json:"resource_id,omitempty"`
	Request       string    `json:"request,omitempty"`
	Response      string    `json:"response,omitempty"`
	SourceAddress string    `json:"source_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Success       bool      `json:"success"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	TraceID       string    `json:"trace_id"`
	RequestID     string    `json:"request_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publish encodes record as JSON and produces it synchronously.
func (s *Sink) Publish(ctx context.Context, record audit.Record) error {
	value, err := json.Marshal(payload{
		ID:            record.ID.String(),
		Category:      string(record.Category()),
		Actor:         record.Actor,
		Action:        string(record.Action),
		ResourceType:  record.ResourceType,
		ResourceID:    record.ResourceID,
		Request:       record.Request,
		Response:      record.Response,
		SourceAddress: record.SourceAddress,
		UserAgent:     record.UserAgent,
		Success:       record.Success,
		ErrorMessage:  record.ErrorMessage,
		TraceID:       record.TraceID,
		RequestID:     record.RequestID,
		Timestamp:     record.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	return s.producer.Produce(ctx, []byte(record.Actor), value)
}
