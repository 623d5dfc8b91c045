// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package bus

import (
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cadenza/internal/metrics"
)

// PartitionKeyMetadata is the message metadata field holding the Kafka
// partition key. When set it is the canonical event_id, preserving
// partition affinity for an event across topics.
const PartitionKeyMetadata = "partition_key"

// PublisherConfig holds configuration for the Kafka publisher.
type PublisherConfig struct {
	// Brokers is the Kafka bootstrap server list.
	Brokers []string

	// ClientID identifies the worker in Kafka client metrics.
	ClientID string
}

// Publisher wraps the Watermill Kafka publisher with JSON encoding and
// partition-key handling. Safe for concurrent use; at-least-once delivery
// (the producer waits for broker acknowledgement).
type Publisher struct {
	publisher message.Publisher
	mu        sync.RWMutex
	closed    bool
	logger    watermill.LoggerAdapter
}

// NewPublisher creates a Kafka publisher keyed by the partition_key
// metadata field. Messages without a key fall back to their UUID so a
// topic's partitions stay evenly loaded.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	saramaCfg := kafka.DefaultSaramaSyncPublisherConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	if cfg.ClientID != "" {
		saramaCfg.ClientID = cfg.ClientID
	}

	marshaler := kafka.NewWithPartitioningMarshaler(func(_ string, msg *message.Message) (string, error) {
		if key := msg.Metadata.Get(PartitionKeyMetadata); key != "" {
			return key, nil
		}
		return msg.UUID, nil
	})

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:               cfg.Brokers,
		Marshaler:             marshaler,
		OverwriteSaramaConfig: saramaCfg,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}

	return &Publisher{
		publisher: pub,
		logger:    logger,
	}, nil
}

// NewPublisherFromWatermill wraps an existing Watermill publisher.
// Used by tests with the gochannel Pub/Sub.
func NewPublisherFromWatermill(pub message.Publisher, logger watermill.LoggerAdapter) *Publisher {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	return &Publisher{publisher: pub, logger: logger}
}

// Publish sends a message to the topic. The partition key, when non-empty,
// is stored in the message metadata for the partitioning marshaler.
func (p *Publisher) Publish(topic, key string, msg *message.Message) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("publisher is closed")
	}
	p.mu.RUnlock()

	if key != "" {
		msg.Metadata.Set(PartitionKeyMetadata, key)
	}

	if err := p.publisher.Publish(topic, msg); err != nil {
		return err
	}

	metrics.RecordPublish(topic)
	return nil
}

// PublishJSON marshals v to JSON and publishes it keyed by key.
func (p *Publisher) PublishJSON(topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	return p.Publish(topic, key, msg)
}

// WatermillPublisher returns the underlying Watermill publisher, for
// components that require the native interface (e.g. the poison queue
// middleware).
func (p *Publisher) WatermillPublisher() message.Publisher {
	return p.publisher
}

// Close gracefully shuts down the publisher, flushing in-flight sends.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	return p.publisher.Close()
}
