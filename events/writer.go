package events

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/ohsu-comp-bio/cascade/config"
	"github.com/ohsu-comp-bio/cascade/logger"
)

// Writer provides write access to the event stream.
type Writer interface {
	WriteEvent(context.Context, *Event) error
}

type multiwriter []Writer

// MultiWriter writes events to all the given writers.
func MultiWriter(ws ...Writer) Writer {
	return multiwriter(ws)
}

// WriteEvent writes an event to every writer. A failing writer does not
// stop delivery to the others.
func (mw multiwriter) WriteEvent(ctx context.Context, ev *Event) error {
	var result *multierror.Error
	for _, w := range mw {
		if err := w.WriteEvent(ctx, ev); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Close closes every writer which holds resources.
func (mw multiwriter) Close() error {
	var result *multierror.Error
	for _, w := range mw {
		if c, ok := w.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

type discard struct{}

func (discard) WriteEvent(context.Context, *Event) error {
	return nil
}

// Discard is a writer which discards all events.
var Discard Writer = discard{}

// FromConfig returns a Writer based on the given config.
func FromConfig(conf config.Config, log *logger.Logger) (Writer, error) {
	var writers []Writer
	for _, w := range conf.EventWriters {

		var writer Writer
		var err error

		switch w {
		case "log":
			writer = &Logger{Log: log.Sub("events")}
		case "kafka":
			var k *KafkaWriter
			k, err = NewKafkaWriter(conf.Kafka)
			if err == nil {
				writer = &Retrier{Retrier: kafkaRetrier(), Writer: k}
			}
		default:
			err = fmt.Errorf("unknown EventWriter %q", w)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to instantiate EventWriter: %v", err)
		}

		writers = append(writers, &ErrLogger{Writer: writer, Log: log})
	}
	if writers == nil {
		return Discard, nil
	}
	return MultiWriter(writers...), nil
}
