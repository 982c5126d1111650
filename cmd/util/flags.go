package util

import (
	"strings"

	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/spf13/pflag"
)

// ServerFlags returns a new flag set for configuring a Cascade server
func ServerFlags(flagConf *config.Config, configFile *string) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.StringVarP(configFile, "config", "c", *configFile, "Config File")

	f.AddFlagSet(selectorFlags(flagConf))
	f.AddFlagSet(serverFlags(flagConf))
	f.AddFlagSet(dbFlags(flagConf))
	f.AddFlagSet(queueFlags(flagConf))
	f.AddFlagSet(loopFlags(flagConf))
	f.AddFlagSet(materializationFlags(flagConf))
	f.AddFlagSet(loggerFlags(flagConf))

	return f
}

// ClientFlags returns a new flag set for commands which talk to a
// running server.
func ClientFlags(flagConf *config.Config, configFile *string) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.StringVarP(configFile, "config", "c", *configFile, "Config File")
	f.StringVarP(&flagConf.Client.ServerAddress, "server", "S", flagConf.Client.ServerAddress, "Address of the Cascade server")
	f.Var(&flagConf.Client.Timeout, "Client.Timeout", "Request timeout")
	f.IntVar(&flagConf.Client.MaxRetries, "Client.MaxRetries", flagConf.Client.MaxRetries, "Max retries of a failed request")
	f.Float64Var(&flagConf.Client.RequestsPerSecond, "Client.RequestsPerSecond", flagConf.Client.RequestsPerSecond, "Client request rate limit")
	f.AddFlagSet(loggerFlags(flagConf))

	return f
}

func selectorFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.StringVar(&flagConf.Database, "Database", flagConf.Database, "Name of database backed to use. One of ['boltdb', 'badger', 'mongodb']")
	f.StringSliceVar(&flagConf.EventWriters, "EventWriters", flagConf.EventWriters, "Name of an event writer backend to use. This flag can be used multiple times")

	return f
}

func serverFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.StringVar(&flagConf.Server.HostName, "Server.HostName", flagConf.Server.HostName, "Host name or IP")
	f.StringVar(&flagConf.Server.HTTPPort, "Server.HTTPPort", flagConf.Server.HTTPPort, "HTTP Port")
	f.StringVar(&flagConf.Server.AuthToken, "Server.AuthToken", flagConf.Server.AuthToken, "Bearer token required by the server")

	return f
}

func queueFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.IntVar(&flagConf.Queue.NTasks, "Queue.NTasks", flagConf.Queue.NTasks, "Target number of queued tasks")
	f.IntVar(&flagConf.Queue.NTasksPerCycle, "Queue.NTasksPerCycle", flagConf.Queue.NTasksPerCycle, "Max tasks queued per cycle")
	f.IntVar(&flagConf.Queue.MaxFailures, "Queue.MaxFailures", flagConf.Queue.MaxFailures, "Failures after which a task is marked failed")
	f.IntVar(&flagConf.Queue.DependencyConcurrency, "Queue.DependencyConcurrency", flagConf.Queue.DependencyConcurrency, "Concurrent dependency checks")

	return f
}

func loopFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.Var(&flagConf.Loops.OrphanGrace, "Loops.OrphanGrace", "How long a task may be processing without a pilot")
	f.Var(&flagConf.Loops.PilotTimeout, "Loops.PilotTimeout", "How long since its last heartbeat before a pilot is removed")
	f.Var(&flagConf.Loops.LogRetention, "Loops.LogRetention", "How long task logs are kept")

	return f
}

func materializationFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.BoolVar(&flagConf.Materialization.Disabled, "Materialization.Disabled", flagConf.Materialization.Disabled, "Disable the materialization worker")
	f.Var(&flagConf.Materialization.PollInterval, "Materialization.PollInterval", "Materialization request poll interval")
	f.IntVar(&flagConf.Materialization.DefaultNum, "Materialization.DefaultNum", flagConf.Materialization.DefaultNum, "Jobs buffered per dataset when a request names no count")

	return f
}

func loggerFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	f.StringVar(&flagConf.Logger.Level, "Logger.Level", flagConf.Logger.Level, "Level of logging")
	f.StringVar(&flagConf.Logger.OutputFile, "Logger.OutputFile", flagConf.Logger.OutputFile, "File path to write logs to")
	f.StringVar(&flagConf.Logger.Formatter, "Logger.Formatter", flagConf.Logger.Formatter, "Logs formatter. One of ['text', 'json']")

	return f
}

func dbFlags(flagConf *config.Config) *pflag.FlagSet {
	f := pflag.NewFlagSet("", pflag.ContinueOnError)

	// boltdb
	f.StringVar(&flagConf.BoltDB.Path, "BoltDB.Path", flagConf.BoltDB.Path, "Path to BoltDB database")

	// badger
	f.StringVar(&flagConf.Badger.Path, "Badger.Path", flagConf.Badger.Path, "Path to Badger database directory")

	// kafka
	f.StringSliceVar(&flagConf.Kafka.Servers, "Kafka.Servers", flagConf.Kafka.Servers, "Address of a Kafka server. This flag can be used multiple times")
	f.StringVar(&flagConf.Kafka.Topic, "Kafka.Topic", flagConf.Kafka.Topic, "Kafka topic to write events to")

	// mongodb
	f.StringSliceVar(&flagConf.MongoDB.Addrs, "MongoDB.Addrs", flagConf.MongoDB.Addrs, "Address of a MongoDB seed server. This flag can be used multiple times")
	f.StringVar(&flagConf.MongoDB.Database, "MongoDB.Database", flagConf.MongoDB.Database, "Database name in MongoDB")

	return f
}

func normalize(name string) string {
	from := []string{"-", "_"}
	to := "."
	for _, sep := range from {
		name = strings.Replace(name, sep, to, -1)
	}
	return strings.ToLower(name)
}

// NormalizeFlags allows for flags to be case and separator insensitive.
// Use it by passing it to cobra.Command.SetGlobalNormalizationFunc
func NormalizeFlags(f *pflag.FlagSet, name string) pflag.NormalizedName {
	lookup := map[string]string{"help": "help", normalize(name): name}

	f.VisitAll(func(f *pflag.Flag) {
		lookup[normalize(f.Name)] = f.Name
	})

	return pflag.NormalizedName(lookup[normalize(name)])
}
