package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/lavraseats/lavraseats/events"
	"github.com/lavraseats/lavraseats/models"
	"github.com/lavraseats/lavraseats/store"
	"github.com/stretchr/testify/require"
)

type reviewMap map[uint64]*models.Review

func (m reviewMap) GetReview(_ context.Context, id uint64) (*models.Review, error) {
	if r, ok := m[id]; ok {
		return r, nil
	}
	return nil, store.ErrNotFound
}

func dialFeed(t *testing.T, feed *Feed) *websocket.Conn {
	t.Helper()

	r := gin.New()
	r.GET("/live", feed.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/live", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return feed.Clients() == 1 }, time.Second, 10*time.Millisecond)

	return conn
}

func event(t *testing.T, table, kind string, id uint64) []byte {
	t.Helper()

	data, err := events.Encode(events.ChangeEvent{Table: table, Kind: kind, ID: id})
	require.NoError(t, err)
	return data
}

func TestRelayReview(t *testing.T) {
	feed := NewFeed()
	conn := dialFeed(t, feed)
	ctx := context.Background()
	reviews := reviewMap{
		1: {ID: 1, RestaurantID: 3, Text: "old", Sentiment: models.Neutral, Score: 5},
		2: {ID: 2, RestaurantID: 3, Text: "Ótimo!", Sentiment: models.Positive, Score: 9},
	}

	relayReview(ctx, reviews, feed, []byte("not json"))
	relayReview(ctx, reviews, feed, event(t, events.TableReviews, events.KindBackfill, 1))
	relayReview(ctx, reviews, feed, event(t, events.TableReviews, events.KindUpdate, 1))
	relayReview(ctx, reviews, feed, event(t, events.TableRestaurants, events.KindInsert, 1))
	relayReview(ctx, reviews, feed, event(t, events.TableReviews, events.KindInsert, 404))
	relayReview(ctx, reviews, feed, event(t, events.TableReviews, events.KindInsert, 2))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg LiveReview
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "review", msg.Type)
	require.EqualValues(t, 2, msg.Review.ID)
	require.Equal(t, "Ótimo!", msg.Review.Text)
}

func TestFeedDropsClosedClients(t *testing.T) {
	feed := NewFeed()
	conn := dialFeed(t, feed)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return feed.Clients() == 0 }, time.Second, 10*time.Millisecond)

	require.NoError(t, feed.Broadcast(LiveReview{Type: "review"}))
}
