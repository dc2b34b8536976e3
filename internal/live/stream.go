package live

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aliuyar1234/holidaytree/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize int64 = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// Message is one frame sent to a live client.
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Feed binds a topic to the loader whose result is pushed as messages of Type.
type Feed struct {
	Topic Topic
	Type  string
	Load  Loader[any]
}

// FeedOf adapts a typed loader to a Feed.
func FeedOf[T any](topic Topic, typ string, load Loader[T]) Feed {
	return Feed{
		Topic: topic,
		Type:  typ,
		Load: func(ctx context.Context) (any, error) {
			return load(ctx)
		},
	}
}

// Handler upgrades the request and streams every feed until the client disconnects. Only the
// newest pending frame per feed is kept, so slow clients skip straight to the latest state.
func Handler(b Broker, stream string, feeds ...Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug().Err(err).Str("stream", stream).Msg("WebSocket upgrade failed")
			return
		}

		gauge := metrics.LiveSubscribers.WithLabelValues(stream)
		gauge.Inc()
		defer gauge.Dec()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pending := make([]chan []byte, len(feeds))
		for i, feed := range feeds {
			slot := make(chan []byte, 1)
			pending[i] = slot
			typ := feed.Type
			stop, err := Watch(ctx, b, feed.Topic, feed.Load, func(v any) {
				data, err := json.Marshal(Message{Type: typ, Data: v, Timestamp: time.Now().UTC()})
				if err != nil {
					log.Error().Err(err).Str("type", typ).Msg("Failed to encode live message")
					return
				}
				replace(slot, data)
			})
			if err != nil {
				log.Error().Err(err).Str("stream", stream).Msg("Failed to watch topic")
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"),
					time.Now().Add(writeWait))
				_ = conn.Close()
				return
			}
			defer stop()
		}

		go readPump(conn, cancel)
		writePump(ctx, conn, pending)
	}
}

// replace keeps at most one pending frame, dropping an older unsent one.
func replace(slot chan []byte, data []byte) {
	for {
		select {
		case slot <- data:
			return
		default:
		}
		select {
		case <-slot:
		default:
		}
	}
}

// readPump discards client frames and cancels the stream when the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Msg("WebSocket closed unexpectedly")
			}
			return
		}
	}
}

func writePump(ctx context.Context, conn *websocket.Conn, pending []chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	merged := make(chan []byte)
	for _, slot := range pending {
		go func(slot chan []byte) {
			for {
				select {
				case <-ctx.Done():
					return
				case data := <-slot:
					select {
					case merged <- data:
					case <-ctx.Done():
						return
					}
				}
			}
		}(slot)
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-merged:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
