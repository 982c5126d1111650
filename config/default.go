package config

import (
	"os"
	"path"
	"time"

	"github.com/ohsu-comp-bio/cascade/logger"
)

// DefaultConfig returns configuration with simple defaults.
func DefaultConfig() Config {
	cwd, _ := os.Getwd()
	workDir := path.Join(cwd, "cascade-work-dir")

	server := Server{
		HostName:         "localhost",
		HTTPPort:         "8000",
		DisableHTTPCache: true,
	}

	loop := func(interval, minDelay time.Duration) Loop {
		return Loop{Interval: Duration(interval), MinDelay: Duration(minDelay)}
	}

	c := Config{
		Server: server,
		Client: Client{
			ServerAddress:     server.HTTPAddress(),
			Timeout:           Duration(time.Second * 60),
			MaxRetries:        10,
			RequestsPerSecond: 20,
		},
		Logger:       logger.DefaultConfig(),
		Database:     "boltdb",
		EventWriters: []string{"log"},
		BoltDB: BoltDB{
			Path: path.Join(workDir, "cascade.db"),
		},
		Badger: Badger{
			Path: path.Join(workDir, "cascade.badger.db"),
		},
		MongoDB: MongoDB{
			Addrs:    []string{"localhost"},
			Timeout:  Duration(time.Minute * 5),
			Database: "cascade",
		},
		Queue: Queue{
			NTasks:                50000,
			NTasksPerCycle:        1000,
			MaxFailures:           0,
			DependencyConcurrency: 20,
		},
		Loops: Loops{
			QueueTasks:             loop(time.Minute*5, time.Minute),
			UpdatePriority:         loop(time.Hour, time.Minute*5),
			JobCompletion:          loop(time.Minute*10, time.Minute),
			DatasetCompletion:      loop(time.Minute*30, time.Minute),
			NonActiveTasks:         loop(time.Hour, time.Minute*5),
			CleanPilots:            loop(time.Hour, time.Minute*5),
			MaterializationCleanup: loop(time.Hour*6, time.Minute*10),
			Metrics:                loop(time.Minute, time.Second*10),
			OrphanGrace:            Duration(time.Minute * 5),
			PilotTimeout:           Duration(time.Hour),
			LogRetention:           Duration(time.Hour * 24 * 90),
		},
		Materialization: Materialization{
			PollInterval:    Duration(time.Minute),
			CleanupInterval: Duration(time.Hour * 6),
			StaleTimeout:    Duration(time.Hour * 6),
			DefaultNum:      100,
			ConfigCacheSize: 128,
		},
		Priority: Priority{
			AgeHorizon:           Duration(time.Hour * 24 * 30),
			DefaultUserPriority:  0.5,
			DefaultGroupPriority: 0.5,
		},
		Kafka: Kafka{
			Topic: "cascade",
		},
	}

	if tok := os.Getenv("CASCADE_SERVER_TOKEN"); tok != "" {
		c.Client.AuthToken = tok
	}
	return c
}
