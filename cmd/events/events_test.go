package events

import (
	"context"
	"testing"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTailFlags(t *testing.T) {
	cmd, h := newCommandHooks()
	called := false
	h.Tail = func(ctx context.Context, conf config.Kafka, log *logger.Logger) error {
		called = true
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, conf.Servers)
		assert.Equal(t, "cascade-events", conf.Topic)
		return nil
	}
	cmd.SetArgs([]string{"tail", "--kafka-servers", "k1:9092", "--Kafka.Servers", "k2:9092", "--kafka-topic", "cascade-events"})
	require.NoError(t, cmd.Execute())
	assert.True(t, called)
}
