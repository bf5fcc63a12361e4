// Package pubsub fans harvested records out to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"

	"github.com/JakeFAU/catalog-harvester/internal/harvest"
)

// Message attributes set on every publish.
const (
	AttrRunID    = "run_id"
	AttrCategory = "category"
)

// Topic publishes a message and waits for its server ID.
type Topic interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
}

// Publisher implements harvest.Sink over a Topic.
type Publisher struct {
	topic Topic
	runID string
	stop  func()
}

// New creates a Publisher for topic.
func New(topic Topic, runID string) *Publisher {
	return &Publisher{topic: topic, runID: runID}
}

// Dial connects to projectID and publishes to topicName.
func Dial(ctx context.Context, projectID, topicName, runID string) (*Publisher, error) {
	if projectID == "" || topicName == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicName)
	p := New(topicAdapter{topic: topic}, runID)
	p.stop = func() {
		topic.Stop()
		_ = client.Close()
	}
	return p, nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() {
	if p.stop != nil {
		p.stop()
	}
}

// Commit marshals record to JSON and publishes it.
func (p *Publisher) Commit(ctx context.Context, record harvest.Record) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	if record == nil {
		return fmt.Errorf("record is required")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	msg := &pubsub.Message{Data: data}
	msg.Attributes = map[string]string{AttrCategory: record.Category().String()}
	if p.runID != "" {
		msg.Attributes[AttrRunID] = p.runID
	}
	otel.GetTextMapPropagator().Inject(ctx, &attributeCarrier{attrs: msg.Attributes})

	if _, err := p.topic.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publish record: %w", err)
	}
	return nil
}

type topicAdapter struct {
	topic *pubsub.Topic
}

func (a topicAdapter) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	id, err := a.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// attributeCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type attributeCarrier struct {
	attrs map[string]string
}

func (c *attributeCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *attributeCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *attributeCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
