// Package wsgateway is the push surface for /ws/plot/{plot} and /ws/alerts
// (§4.6). Grounded on aristath-sentinel's tradernet websocket client
// (internal/clients/tradernet/websocket_client.go) for the nhooyr.io/websocket
// read/write/close idiom, inverted here from an outbound client dialing a
// remote feed into an inbound server accepting browser connections and
// relaying internal/bus events.
package wsgateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/harvestguard/ingestcore/internal/bus"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Gateway upgrades HTTP requests to websockets and relays internal/bus
// events for the requested topic until the client disconnects.
type Gateway struct {
	bus    *bus.Bus
	logger *zap.Logger
}

func New(b *bus.Bus, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &Gateway{bus: b, logger: logger}
}

// ServePlot handles GET /ws/plot/:plot (§4.6).
func (g *Gateway) ServePlot(c echo.Context) error {
	plotID := c.Param("plot")
	return g.serve(c, bus.PlotTopic(plotID))
}

// ServeAlerts handles GET /ws/alerts (§4.6).
func (g *Gateway) ServeAlerts(c echo.Context) error {
	return g.serve(c, bus.AlertsTopic)
}

func (g *Gateway) serve(c echo.Context, topic string) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "gateway closing")

	events, unsubscribe := g.bus.Subscribe(topic, 32)
	defer unsubscribe()

	ctx := conn.CloseRead(c.Request().Context())

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := g.writeEvent(ctx, conn, ev); err != nil {
				g.logger.Debug("websocket write failed, closing", zap.String("topic", topic), zap.Error(err))
				return nil
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return nil
			}
		}
	}
}

func (g *Gateway) writeEvent(ctx context.Context, conn *websocket.Conn, ev bus.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, payload)
}
