// Copyright 2024 The agentsched Authors
// Licensed under the GNU Lesser General Public License v3.0 (see LICENSE).

package event

import (
	"encoding/json"
	"time"

	"github.com/Shopify/sarama"

	"github.com/agentsched/core/log"
)

var logger = log.NewModuleLogger(log.Event)

// KafkaPublisher mirrors every Transition to a Kafka topic, grounded on
// datasync/chaindatafetcher/event/kafka/kafka.go's Publish(topic, msg)
// JSON-encode-then-produce shape. It is optional: the manager posts to
// the in-process Bus regardless of whether one is configured.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
}

// NewKafkaPublisher dials brokers and starts an async producer.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	p := &KafkaPublisher{producer: producer, topic: topic}
	go p.drainErrors()
	return p, nil
}

func (p *KafkaPublisher) drainErrors() {
	for err := range p.producer.Errors() {
		logger.Warn("kafka publish failed", "err", err)
	}
}

// Publish JSON-encodes t and hands it to the async producer, keyed by the
// task hash so all of a task's transitions land on the same partition.
func (p *KafkaPublisher) Publish(t Transition) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(t.TaskHash),
		Value: sarama.ByteEncoder(data),
	}
	return nil
}

// Close shuts the producer down.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Mirror wires a KafkaPublisher into a Bus subscription: every Transition
// posted to bus is also published to Kafka, for consumers outside the
// process (§7's attribute stream).
func Mirror(bus *Bus, pub *KafkaPublisher) *Subscription {
	sub := bus.Subscribe(64)
	go func() {
		for t := range sub.Chan() {
			if err := pub.Publish(t); err != nil {
				logger.Warn("mirror publish failed", "action", t.Action, "err", err)
			}
		}
	}()
	return sub
}
