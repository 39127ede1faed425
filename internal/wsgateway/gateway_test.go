package wsgateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/harvestguard/ingestcore/internal/bus"
)

func TestServePlotRelaysBusEvents(t *testing.T) {
	b := bus.New(nil)
	gw := New(b, nil)

	e := echo.New()
	e.GET("/ws/plot/:plot", gw.ServePlot)
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/plot/p1"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return b.SubscriberCount(bus.PlotTopic("p1")) == 1
	}, time.Second, 10*time.Millisecond)

	b.Emit(bus.PlotTopic("p1"), bus.EventWeatherIndexUpdated, map[string]string{"plot_id": "p1"})

	_, msg, err := conn.Read(ctx)
	require.NoError(t, err)

	var received bus.Event
	require.NoError(t, json.Unmarshal(msg, &received))
	assert.Equal(t, bus.EventWeatherIndexUpdated, received.Type)
}

func TestServeAlertsUsesSharedTopic(t *testing.T) {
	b := bus.New(nil)
	gw := New(b, nil)

	e := echo.New()
	e.GET("/ws/alerts", gw.ServeAlerts)
	srv := httptest.NewServer(e)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		return b.SubscriberCount(bus.AlertsTopic) == 1
	}, time.Second, 10*time.Millisecond)
}
