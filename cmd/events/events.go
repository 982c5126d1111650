// Package events contains the "events" command, which follows the event
// stream written to Kafka.
package events

import (
	"context"
	"fmt"
	"syscall"

	"github.com/ohsu-comp-bio/cascade/cmd/util"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/events"
	"github.com/ohsu-comp-bio/cascade/logger"
	cutil "github.com/ohsu-comp-bio/cascade/util"
	"github.com/spf13/cobra"
)

// NewCommand returns the "events" subcommands.
func NewCommand() *cobra.Command {
	cmd, _ := newCommandHooks()
	return cmd
}

type hooks struct {
	Tail func(ctx context.Context, conf config.Kafka, log *logger.Logger) error
}

func newCommandHooks() (*cobra.Command, *hooks) {
	h := &hooks{
		Tail: Tail,
	}

	var (
		configFile string
		conf       config.Config
		flagConf   config.Config
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read the event stream.",
	}

	tail := &cobra.Command{
		Use:   "tail",
		Short: "Log events from the configured Kafka topic until interrupted.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			conf, err = util.MergeConfigFileWithFlags(configFile, flagConf)
			if err != nil {
				return fmt.Errorf("error processing config: %v", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.NewLogger("events", conf.Logger)
			return h.Tail(cmd.Context(), conf.Kafka, log)
		},
	}
	tail.SetGlobalNormalizationFunc(util.NormalizeFlags)
	f := tail.Flags()
	f.StringVarP(&configFile, "config", "c", configFile, "Config File")
	f.StringSliceVar(&flagConf.Kafka.Servers, "Kafka.Servers", flagConf.Kafka.Servers, "Address of a Kafka server. This flag can be used multiple times")
	f.StringVar(&flagConf.Kafka.Topic, "Kafka.Topic", flagConf.Kafka.Topic, "Kafka topic to read events from")

	cmd.AddCommand(tail)
	return cmd, h
}

// Tail logs every event read from Kafka until ctx is canceled or the
// process is interrupted.
func Tail(ctx context.Context, conf config.Kafka, log *logger.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := cutil.SignalContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r, err := events.NewKafkaReader(ctx, conf, &events.Logger{Log: log})
	if err != nil {
		return fmt.Errorf("connecting to kafka: %v", err)
	}
	defer r.Close()
	log.Info("reading events", "servers", conf.Servers, "topic", conf.Topic)

	<-ctx.Done()
	return nil
}
