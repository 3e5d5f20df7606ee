package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/lavraseats/lavraseats/events"
	"github.com/lavraseats/lavraseats/metrics"
	"github.com/lavraseats/lavraseats/models"
)

const (
	feedBuffer     = 16
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
)

type LiveReview struct {
	Type   string        `json:"type"`
	Review *models.Review `json:"review"`
}

type feedClient struct {
	send chan []byte
}

// Feed fans newly stored reviews out to websocket clients. Slow clients are
// dropped instead of holding everyone else back.
type Feed struct {
	mu       sync.Mutex
	clients  map[*feedClient]struct{}
	upgrader websocket.Upgrader
}

func NewFeed() *Feed {
	return &Feed{
		clients: make(map[*feedClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (f *Feed) add() *feedClient {
	client := &feedClient{send: make(chan []byte, feedBuffer)}

	f.mu.Lock()
	f.clients[client] = struct{}{}
	f.mu.Unlock()
	metrics.LiveFeedConnections.Inc()

	return client
}

func (f *Feed) remove(client *feedClient) {
	f.mu.Lock()
	if _, ok := f.clients[client]; ok {
		delete(f.clients, client)
		close(client.send)
		metrics.LiveFeedConnections.Dec()
	}
	f.mu.Unlock()
}

func (f *Feed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *Feed) Broadcast(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for client := range f.clients {
		select {
		case client.send <- data:
		default:
			delete(f.clients, client)
			close(client.send)
			metrics.LiveFeedConnections.Dec()
			slog.Warn("dropped slow live feed client")
		}
	}

	return nil
}

func (f *Feed) Serve(c *gin.Context) {
	conn, err := f.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := f.add()
	defer f.remove(client)

	// The reader only notices the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case data, ok := <-client.send:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Error("failed to write to ws connection", "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type reviewGetter interface {
	GetReview(ctx context.Context, id uint64) (*models.Review, error)
}

// relayReview turns one review change event into a live feed message. Only
// fresh inserts are relayed.
func relayReview(ctx context.Context, st reviewGetter, feed *Feed, data []byte) {
	ev, err := events.Decode(data)
	if err != nil {
		slog.Warn("ignoring malformed review event", "error", err)
		return
	}
	if ev.Table != events.TableReviews || ev.Kind != events.KindInsert {
		return
	}

	review, err := st.GetReview(ctx, ev.ID)
	if err != nil {
		slog.Warn("review event for unreadable review", "id", ev.ID, "error", err)
		return
	}

	if err := feed.Broadcast(LiveReview{Type: "review", Review: review}); err != nil {
		slog.Error("broadcast review", "id", ev.ID, "error", err)
	}
}
