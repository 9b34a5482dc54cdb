// Package pubsub publishes run notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Config names the destination topic.
type Config struct {
	ProjectID string
	Topic     string
}

// Publisher wraps a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// Open connects to Pub/Sub and verifies the topic exists.
func Open(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Publisher, error) {
	if cfg.ProjectID == "" || cfg.Topic == "" {
		return nil, errors.New("pubsub project id and topic are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Topic)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check topic %s: %w", cfg.Topic, err)
	}
	if !ok {
		_ = client.Close()
		return nil, fmt.Errorf("topic %s does not exist", cfg.Topic)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// New wraps an existing topic. Close stops the topic but leaves its client open.
func New(topic *pubsub.Topic) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals payload to JSON, tags it with event, and waits for the
// server-assigned id.
func (p *Publisher) Publish(ctx context.Context, event string, payload any) (string, error) {
	if p == nil || p.topic == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"event": event},
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending publishes and releases the client when owned.
func (p *Publisher) Close() error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.topic.Stop()
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}
