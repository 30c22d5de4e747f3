package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "bankguard/pkg/platform/audit"
)

type captureProducer struct {
	key, value []byte
}

func (p *captureProducer) Produce(_ context.Context, key, value []byte) error {
	p.key, p.value = key, value
	return nil
}

func TestSink_PublishKeysByActor(t *testing.T) {
	producer := &captureProducer{}
	sink := NewSink(producer)
	id := uuid.New()
	ts := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	err := sink.Publish(context.Background(), audit.Record{
		ID:           id,
		Actor:        "user-7",
		Action:       audit.ActionAIQueryComplianceViolation,
		Success:      false,
		ErrorMessage: "AML-1",
		TraceID:      "trace-1",
		Timestamp:    ts,
	})
	require.NoError(t, err)
	assert.Equal(t, "user-7", string(producer.key))

	var got map[string]any
	require.NoError(t, json.Unmarshal(producer.value, &got))
	assert.Equal(t, id.String(), got["id"])
	assert.Equal(t, "compliance", got["category"])
	assert.Equal(t, "AI_QUERY_COMPLIANCE_VIOLATION", got["action"])
	assert.Equal(t, false, got["success"])
	assert.Equal(t, "2026-05-04T10:00:00Z", got["timestamp"])
	assert.NotContains(t, got, "resource_type")
}
