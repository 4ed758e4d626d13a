package events

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// UpgradeRequired rejects plain HTTP requests on websocket routes.
func UpgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// WebsocketHandler pushes every PayEvent to the connected client as JSON. The
// stream is one-way: client frames are read and discarded, and a read error
// ends the connection. An optional ?tenant= query narrows the stream.
func WebsocketHandler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		var tenantID uint
		if raw := c.Query("tenant"); raw != "" {
			if v, err := strconv.ParseUint(raw, 10, 64); err == nil {
				tenantID = uint(v)
			}
		}

		done := make(chan struct{})
		var once sync.Once
		stop := func() { once.Do(func() { close(done) }) }

		name := "ws:" + c.RemoteAddr().String()
		unsubscribe := hub.Subscribe(name, func(e PayEvent) error {
			if tenantID != 0 && e.TenantID != tenantID {
				return nil
			}
			if err := c.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				stop()
				return err
			}
			if err := c.WriteJSON(e); err != nil {
				stop()
				return err
			}
			return nil
		})
		defer unsubscribe()

		// drains client frames so close frames and disconnects are noticed
		go func() {
			for {
				if _, _, err := c.ReadMessage(); err != nil {
					stop()
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-hub.Closing():
				_ = c.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(wsWriteWait))
				return
			case <-ticker.C:
				if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					log.Debugf("[EventHub] Websocket %s ping failed: %v", name, err)
					return
				}
			}
		}
	})
}
