package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelcheck/internal/platform/config"
)

func TestNewWithoutBrokers(t *testing.T) {
	client, err := New(context.Background(), config.Kafka{Topic: "t"})
	require.NoError(t, err)
	assert.Nil(t, client)
}
