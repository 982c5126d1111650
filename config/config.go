package config

import (
	"github.com/ohsu-comp-bio/cascade/logger"
)

// Config describes configuration for Cascade.
type Config struct {
	Server          Server
	Client          Client
	Logger          logger.Config
	Database        string
	BoltDB          BoltDB
	Badger          Badger
	MongoDB         MongoDB
	Queue           Queue
	Loops           Loops
	Materialization Materialization
	Priority        Priority
	EventWriters    []string
	Kafka           Kafka
}

// Server describes configuration for the HTTP server.
type Server struct {
	HostName string
	HTTPPort string
	// Bearer token required on every request. Empty disables the check.
	AuthToken        string
	DisableHTTPCache bool
}

// HTTPAddress returns the HTTP address based on HostName and HTTPPort
func (c Server) HTTPAddress() string {
	if c.HostName != "" && c.HTTPPort != "" {
		return "http://" + c.HostName + ":" + c.HTTPPort
	}
	return ""
}

// Client describes configuration for the REST client used by CLI commands.
type Client struct {
	ServerAddress     string
	AuthToken         string
	Timeout           Duration
	MaxRetries        int
	RequestsPerSecond float64
}

// BoltDB describes the directory to store task and dataset data.
type BoltDB struct {
	Path string
}

// Badger describes configuration for the Badger embedded database.
type Badger struct {
	// Path to database directory.
	Path string
}

// MongoDB describes the configuration for the MongoDB database backend.
type MongoDB struct {
	// Addrs holds the addresses for the seed servers.
	Addrs []string
	// Database is the database name used to establish the session.
	Database string
	// Timeout is the amount of time to wait for a server to respond when
	// first connecting and on follow up operations in the session.
	Timeout  Duration
	Username string
	Password string
}

// Queue configures admission and dispatch.
type Queue struct {
	// Target number of queued tasks.
	NTasks int
	// Max tasks admitted per queue_tasks pass.
	NTasksPerCycle int
	// Failures after which a reset task is marked failed. Zero disables.
	MaxFailures int
	// Max concurrent dependency checks and priority updates.
	DependencyConcurrency int
}

// Loop describes the schedule of one control loop.
type Loop struct {
	Interval Duration
	// Minimum delay between runs, even when a run overran its interval.
	MinDelay Duration
	Disabled bool
}

// Loops configures the recovery and rebalancing loops.
type Loops struct {
	QueueTasks             Loop
	UpdatePriority         Loop
	JobCompletion          Loop
	DatasetCompletion      Loop
	NonActiveTasks         Loop
	CleanPilots            Loop
	MaterializationCleanup Loop
	Metrics                Loop
	// How long a task may stay processing without a pilot claiming it.
	OrphanGrace Duration
	// How long since the last heartbeat before a pilot is removed.
	PilotTimeout Duration
	// How long task logs are kept.
	LogRetention Duration
}

// Materialization configures the materialization worker.
type Materialization struct {
	Disabled        bool
	PollInterval    Duration
	CleanupInterval Duration
	// Age after which a processing request is considered abandoned and
	// terminal requests are deleted.
	StaleTimeout    Duration
	DefaultNum      int
	ConfigCacheSize int
}

// Priority configures the priority engine.
type Priority struct {
	// Dataset age at which the age bias saturates.
	AgeHorizon           Duration
	DefaultUserPriority  float64
	DefaultGroupPriority float64
}

// Kafka describes the configuration for the Kafka event writer.
type Kafka struct {
	Servers []string
	Topic   string
}
