package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"magnet/internal/domain/trend"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	sent []message
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, message{subject: subject, data: data})
	return nil
}

func TestPublishTrend(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "magnet.trend")

	report := trend.ClusterTrendReport{ClusterID: 7, Trend: trend.Rising, SMAShort: 4.5, SMALong: 2, Size: 24}
	require.NoError(t, p.PublishTrend(context.Background(), "run-1", report))

	require.Len(t, conn.sent, 1)
	assert.Equal(t, "magnet.trend.rising", conn.sent[0].subject)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(conn.sent[0].data, &payload))
	assert.Equal(t, "run-1", payload["run_id"])
	assert.Equal(t, float64(7), payload["cluster_id"])
	assert.Equal(t, "rising", payload["trend"])
}

func TestPublishRunCompleted(t *testing.T) {
	conn := &fakeConn{}
	p := NewPublisher(conn, "magnet.trend")

	require.NoError(t, p.PublishRunCompleted(context.Background(), "run-2", 40, 3))

	require.Len(t, conn.sent, 1)
	assert.Equal(t, "magnet.trend.run.completed", conn.sent[0].subject)

	var event RunCompletedEvent
	require.NoError(t, json.Unmarshal(conn.sent[0].data, &event))
	assert.Equal(t, RunCompletedEvent{RunID: "run-2", TotalItems: 40, Clusters: 3}, event)
}

func TestPublishErrorsAreWrapped(t *testing.T) {
	boom := errors.New("connection closed")
	p := NewPublisher(&fakeConn{err: boom}, "magnet.trend")

	err := p.PublishTrend(context.Background(), "run-3", trend.ClusterTrendReport{Trend: trend.Flat})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "magnet.trend.flat")
}

func TestPublishHonorsCancelledContext(t *testing.T) {
	conn := &fakeConn{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewPublisher(conn, "magnet.trend").PublishRunCompleted(ctx, "run-4", 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, conn.sent)
}

func TestAllSubjects(t *testing.T) {
	assert.Equal(t, "magnet.trend.>", AllSubjects("magnet.trend"))
}
