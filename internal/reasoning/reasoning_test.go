package reasoning

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankguard/internal/platform/config"
)

type verdict struct {
	Compliant  *bool    `json:"compliant"`
	Violations []string `json:"violations"`
}

func TestDecodeJSON(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		var v verdict
		require.NoError(t, DecodeJSON(` {"compliant": true} `, &v))
		require.NotNil(t, v.Compliant)
		assert.True(t, *v.Compliant)
	})

	t.Run("fenced object", func(t *testing.T) {
		var v verdict
		require.NoError(t, DecodeJSON("```json\n{\"compliant\": false, \"violations\": [\"AML-1\"]}\n```", &v))
		assert.Equal(t, []string{"AML-1"}, v.Violations)
	})

	rejected := map[string]string{
		"prose before object": `Sure! {"compliant": true}`,
		"unknown field":       `{"compliant": true, "confidence": 0.9}`,
		"trailing object":     `{"compliant": true} {"compliant": false}`,
		"wrong type":          `{"compliant": "yes"}`,
		"array":               `[true]`,
		"empty":               ``,
	}
	for name, input := range rejected {
		t.Run(name, func(t *testing.T) {
			var v verdict
			err := DecodeJSON(input, &v)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestNewAnthropicWithoutKey(t *testing.T) {
	m := NewAnthropic(config.AnthropicConfig{})
	_, err := m.Complete(context.Background(), Request{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
