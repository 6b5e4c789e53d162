// Package pubsub announces finished crawl runs on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
	"google.golang.org/api/option"
)

// AttrSubject carries the logical topic passed to Publish; the Pub/Sub topic itself is fixed per
// Publisher.
const AttrSubject = "subject"

// ErrNotConfigured is returned when the publisher has no topic handle.
var ErrNotConfigured = errors.New("pubsub publisher is not configured")

// Publisher sends JSON payloads to one Pub/Sub topic.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// Open connects to projectID and binds the publisher to topicID.
func Open(ctx context.Context, projectID, topicID string, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("open pubsub publisher: project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return &Publisher{client: client, publisher: client.Publisher(topicID)}, nil
}

// New wraps an existing topic publisher. Close leaves its client alone.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Publish marshals payload to JSON and waits for the server to accept it.
func (p *Publisher) Publish(ctx context.Context, subject string, payload any) (string, error) {
	if p == nil || p.publisher == nil {
		return "", ErrNotConfigured
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{AttrSubject: subject}}
	otel.GetTextMapPropagator().Inject(ctx, attributeCarrier(msg.Attributes))

	id, err := p.publisher.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client when Open created it.
func (p *Publisher) Close() error {
	if p == nil || p.publisher == nil {
		return nil
	}
	p.publisher.Stop()
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}

// attributeCarrier lets the otel propagator write trace headers into message attributes.
type attributeCarrier map[string]string

func (c attributeCarrier) Get(key string) string { return c[key] }

func (c attributeCarrier) Set(key, value string) { c[key] = value }

func (c attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
