// internal/adapter/events/publisher.go

package events

import (
	"context"
	"encoding/json"
	"fmt"

	"magnet/internal/domain/trend"
)

// Conn is the part of *nats.Conn the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
}

// TrendEvent is the payload of a per-cluster trend message
type TrendEvent struct {
	RunID string `json:"run_id"`
	trend.ClusterTrendReport
}

// RunCompletedEvent is the payload of the run completion message
type RunCompletedEvent struct {
	RunID      string `json:"run_id"`
	TotalItems int    `json:"total_items"`
	Clusters   int    `json:"clusters"`
}

// Publisher publishes trend events to NATS
type Publisher struct {
	conn  Conn
	topic string
}

var _ trend.Publisher = (*Publisher)(nil)

// NewPublisher creates a publisher rooted at topic
func NewPublisher(conn Conn, topic string) *Publisher {
	return &Publisher{
		conn:  conn,
		topic: topic,
	}
}

// PublishTrend publishes a report on <topic>.<trend>
func (p *Publisher) PublishTrend(ctx context.Context, runID string, report trend.ClusterTrendReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(TrendEvent{RunID: runID, ClusterTrendReport: report})
	if err != nil {
		return fmt.Errorf("error marshaling trend event: %w", err)
	}

	return p.publish(TrendSubject(p.topic, report.Trend), data)
}

// PublishRunCompleted publishes on <topic>.run.completed
func (p *Publisher) PublishRunCompleted(ctx context.Context, runID string, totalItems int, clusters int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(RunCompletedEvent{RunID: runID, TotalItems: totalItems, Clusters: clusters})
	if err != nil {
		return fmt.Errorf("error marshaling run event: %w", err)
	}

	return p.publish(RunCompletedSubject(p.topic), data)
}

func (p *Publisher) publish(subject string, data []byte) error {
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("error publishing to %s: %w", subject, err)
	}
	return nil
}

// TrendSubject is the subject a classification is published on
func TrendSubject(topic string, c trend.Classification) string {
	return fmt.Sprintf("%s.%s", topic, c)
}

// RunCompletedSubject is the subject run completion is published on
func RunCompletedSubject(topic string) string {
	return fmt.Sprintf("%s.run.completed", topic)
}

// AllSubjects matches every event published under topic
func AllSubjects(topic string) string {
	return topic + ".>"
}
