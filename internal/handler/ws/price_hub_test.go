package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PricePull/internal/catalog"
	"PricePull/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	hub := NewHub(cat)
	e := echo.New()
	hub.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		_ = hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/prices"
}

func dial(t *testing.T, hub *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return hub.Subscribers() == want }, time.Second, 10*time.Millisecond)
	return conn
}

func TestHubBroadcastsAndFilters(t *testing.T) {
	hub, url := startHub(t)
	all := dial(t, hub, url, 1)
	belly := dial(t, hub, url+"?part=Belly", 2)

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, models.PriceEvent{ItemKey: "Beef_Ribeye", Price: 25000}))
	require.NoError(t, hub.Publish(ctx, models.PriceEvent{ItemKey: "Pork_Belly", Price: 2600}))

	var ev models.PriceEvent
	require.NoError(t, all.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, all.ReadJSON(&ev))
	require.Equal(t, "Beef_Ribeye", ev.ItemKey)
	require.NoError(t, all.ReadJSON(&ev))
	require.Equal(t, "Pork_Belly", ev.ItemKey)

	require.NoError(t, belly.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, belly.ReadJSON(&ev))
	require.Equal(t, "Pork_Belly", ev.ItemKey)
	require.Equal(t, 2600, ev.Price)
}

func TestHubRejectsUnknownPart(t *testing.T) {
	_, url := startHub(t)
	_, resp, err := websocket.DefaultDialer.Dial(url+"?part=Chicken", nil)
	require.Error(t, err)
	require.Equal(t, 400, resp.StatusCode)
}

func TestHubDropsClosedSubscribers(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url, 1)
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 10*time.Millisecond)
}
