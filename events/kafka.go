package events

import (
	"context"

	"github.com/Shopify/sarama"
	"github.com/ohsu-comp-bio/cascade/config"
)

// KafkaWriter writes events to a Kafka topic.
type KafkaWriter struct {
	conf     config.Kafka
	producer sarama.SyncProducer
}

// NewKafkaWriter creates a new event writer for writing events to a Kafka topic.
func NewKafkaWriter(conf config.Kafka) (*KafkaWriter, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(conf.Servers, sc)
	if err != nil {
		return nil, err
	}
	return &KafkaWriter{conf, producer}, nil
}

// Close closes the Kafka producer, cleaning up resources.
func (k *KafkaWriter) Close() error {
	return k.producer.Close()
}

// WriteEvent writes the event, keyed by the ID of the record it concerns
// so a record's events stay ordered within a partition.
func (k *KafkaWriter) WriteEvent(ctx context.Context, ev *Event) error {
	b, err := Marshal(ev)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: k.conf.Topic,
		Key:   sarama.StringEncoder(ev.ID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = k.producer.SendMessage(msg)
	return err
}

// KafkaReader reads events from a Kafka topic and writes them
// to a Writer.
type KafkaReader struct {
	conf config.Kafka
	con  sarama.Consumer
	pcon sarama.PartitionConsumer
}

// NewKafkaReader creates a new event reader for reading events from a Kafka topic and writing them to the given Writer.
func NewKafkaReader(ctx context.Context, conf config.Kafka, w Writer) (*KafkaReader, error) {
	con, err := sarama.NewConsumer(conf.Servers, nil)
	if err != nil {
		return nil, err
	}
	return newKafkaReader(ctx, conf, con, w)
}

func newKafkaReader(ctx context.Context, conf config.Kafka, con sarama.Consumer, w Writer) (*KafkaReader, error) {
	// TODO consume every partition of the topic, not only the first.
	p, err := con.ConsumePartition(conf.Topic, 0, sarama.OffsetNewest)
	if err != nil {
		con.Close()
		return nil, err
	}

	go func() {
		for msg := range p.Messages() {
			ev := &Event{}
			if err := Unmarshal(msg.Value, ev); err != nil {
				continue
			}
			w.WriteEvent(ctx, ev)
		}
	}()
	return &KafkaReader{conf, con, p}, nil
}

// Close closes the Kafka reader, cleaning up resources.
func (k *KafkaReader) Close() error {
	perr := k.pcon.Close()
	err := k.con.Close()
	if perr != nil {
		return perr
	}
	return err
}
