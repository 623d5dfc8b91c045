// Cadenza - Music Publishing Usage Matching Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cadenza

package bus

import (
	"fmt"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
)

// SubscriberConfig holds configuration for the Kafka consumer group.
type SubscriberConfig struct {
	// Brokers is the Kafka bootstrap server list.
	Brokers []string

	// ConsumerGroup is the Kafka consumer group id. Workers sharing a
	// group split partitions between them.
	ConsumerGroup string

	// ClientID identifies the worker in Kafka client metrics.
	ClientID string
}

// NewSubscriber creates a Kafka consumer-group subscriber. New groups start
// from the earliest offset so a fresh deployment replays retained history
// instead of silently skipping it.
func NewSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("consumer group is required")
	}
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	saramaCfg := kafka.DefaultSaramaSubscriberConfig()
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	if cfg.ClientID != "" {
		saramaCfg.ClientID = cfg.ClientID
	}

	sub, err := kafka.NewSubscriber(kafka.SubscriberConfig{
		Brokers:               cfg.Brokers,
		Unmarshaler:           kafka.DefaultMarshaler{},
		OverwriteSaramaConfig: saramaCfg,
		ConsumerGroup:         cfg.ConsumerGroup,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create kafka subscriber: %w", err)
	}

	return sub, nil
}
