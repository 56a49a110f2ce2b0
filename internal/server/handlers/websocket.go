// internal/server/handlers/websocket.go

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"magnet/internal/adapter/events"
	"magnet/internal/domain/trend"
)

// EventSource subscribes to published trend events
type EventSource interface {
	Subscribe(subject string, handler func(data []byte)) (func(), error)
}

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64

	// Messages buffered per client before new events are dropped
	SendBuffer int
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 4 * 1024,
		SendBuffer:     256,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// trendClient is one connected trend feed consumer
type trendClient struct {
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	unsubscribe func()
	config      WebSocketConfig
	logger      *slog.Logger
}

// TrendWebSocketHandler streams published trend events to websocket clients.
// The optional trend query parameter restricts the feed to one classification.
func TrendWebSocketHandler(source EventSource, topic string, config WebSocketConfig, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ws")

	return func(w http.ResponseWriter, r *http.Request) {
		subject := events.AllSubjects(topic)
		if filter := r.URL.Query().Get("trend"); filter != "" {
			c := trend.Classification(filter)
			if c != trend.Rising && c != trend.Falling && c != trend.Flat {
				respondWithError(w, logger, http.StatusBadRequest, "Invalid trend filter", nil)
				return
			}
			subject = events.TrendSubject(topic, c)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("failed to upgrade to websocket", "error", err)
			return
		}

		client := &trendClient{
			conn:   conn,
			send:   make(chan []byte, config.SendBuffer),
			done:   make(chan struct{}),
			config: config,
			logger: logger,
		}

		unsubscribe, err := source.Subscribe(subject, client.deliver)
		if err != nil {
			logger.Error("failed to subscribe to trend events", "subject", subject, "error", err)
			conn.Close()
			return
		}
		client.unsubscribe = unsubscribe

		welcome, _ := json.Marshal(map[string]interface{}{
			"type":    "welcome",
			"subject": subject,
			"time":    time.Now().UTC(),
		})
		client.deliver(welcome)

		logger.Info("websocket client connected", "subject", subject, "remote", r.RemoteAddr)

		go client.writePump()
		go client.readPump()
	}
}

// deliver queues a message, dropping it when the client is not keeping up
func (c *trendClient) deliver(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("dropping trend event for slow client")
	}
}

// readPump only processes control frames; clients do not send data
func (c *trendClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket error", "error", err)
			}
			return
		}
	}
}

func (c *trendClient) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *trendClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.conn.Close()
		c.logger.Info("websocket client disconnected")
	})
}
