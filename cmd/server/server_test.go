package server

import (
	"context"
	"testing"

	"github.com/ohsu-comp-bio/cascade/cmd/util"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistentPreRun(t *testing.T) {
	fileConf := config.DefaultConfig()
	fileConf.Queue.NTasksPerCycle = 42
	tmp, cleanup := util.TempConfigFile(fileConf, "testconfig.yaml")
	defer cleanup()

	c, h := newCommandHooks()
	called := false
	h.Run = func(ctx context.Context, conf config.Config, log *logger.Logger) error {
		called = true
		assert.Equal(t, "9999", conf.Server.HTTPPort)
		assert.Equal(t, "tok", conf.Server.AuthToken)
		assert.Equal(t, "tok", conf.Client.AuthToken)
		assert.Equal(t, 42, conf.Queue.NTasksPerCycle)
		assert.Equal(t, "badger", conf.Database)
		return nil
	}

	c.SetArgs([]string{
		"run", "--config", tmp,
		"--Server.HTTPPort", "9999", "--server-authtoken", "tok",
		"--Database", "badger",
	})
	require.NoError(t, c.Execute())
	assert.True(t, called)
}
