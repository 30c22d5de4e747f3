package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bankguard/internal/platform/config"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{ServiceName: "test"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
