package util

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeConfigFileWithFlags(t *testing.T) {
	flagConf := config.Config{}
	flagConf.Server.HTTPPort = "9999"
	flagConf.Queue.NTasks = 7

	result, err := MergeConfigFileWithFlags("", flagConf)
	require.NoError(t, err)
	assert.Equal(t, "9999", result.Server.HTTPPort)
	assert.Equal(t, 7, result.Queue.NTasks)
	assert.Equal(t, "http://localhost:9999", result.Client.ServerAddress)

	fileConf := config.DefaultConfig()
	fileConf.Queue.NTasksPerCycle = 3
	fileConf.Loops.OrphanGrace = config.Duration(time.Hour)
	tmp, cleanup := TempConfigFile(fileConf, "testconfig.yaml")
	defer cleanup()

	result, err = MergeConfigFileWithFlags(tmp, flagConf)
	require.NoError(t, err)
	assert.Equal(t, "9999", result.Server.HTTPPort)
	assert.Equal(t, 3, result.Queue.NTasksPerCycle)
	assert.Equal(t, time.Hour, result.Loops.OrphanGrace.D())
	assert.Equal(t, "boltdb", result.Database)
}

func TestFlagsAreNormalized(t *testing.T) {
	var configFile string
	flagConf := config.Config{}
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.SetGlobalNormalizationFunc(NormalizeFlags)
	cmd.Flags().AddFlagSet(ServerFlags(&flagConf, &configFile))

	cmd.SetArgs([]string{"--queue-ntasks", "12", "--Loops.OrphanGrace", "15m", "--database", "badger"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, 12, flagConf.Queue.NTasks)
	assert.Equal(t, 15*time.Minute, flagConf.Loops.OrphanGrace.D())
	assert.Equal(t, "badger", flagConf.Database)
}

func TestOpenDatabase(t *testing.T) {
	ctx := context.Background()
	conf := config.DefaultConfig()
	conf.BoltDB.Path = filepath.Join(t.TempDir(), "cascade.db")

	db, err := OpenDatabase(ctx, conf)
	require.NoError(t, err)
	assert.NoError(t, db.Close())

	conf.Database = "nope"
	_, err = OpenDatabase(ctx, conf)
	assert.Error(t, err)
}
