package events

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"wablast/internal/app"
	"wablast/pkg/auth"
	"wablast/pkg/log"
	"wablast/pkg/relay"
	"wablast/pkg/router"
)

// Upgrade gates the WebSocket handshake. The session token travels in the
// token query parameter because browsers cannot set headers on a handshake.
func Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return router.ResponseBadRequest(c, "WebSocket Upgrade is Required")
	}

	sessionID, err := auth.ValidateSessionToken(auth.TokenFromRequest(c))
	if err != nil {
		return router.ResponseUnauthorized(c, "Invalid session token")
	}

	c.Locals("session_id", sessionID)
	return c.Next()
}

// Stream attaches one WebSocket connection to the relay hub, scoped to the
// session id resolved during the handshake.
var Stream = websocket.New(func(conn *websocket.Conn) {
	sessionID, _ := conn.Locals("session_id").(string)
	if sessionID == "" {
		_ = conn.Close()
		return
	}

	client := relay.NewClient(app.Hub, conn, sessionID)
	app.Hub.Register(client)

	log.SessionOp(sessionID, "ws").Info("Event stream attached")

	go client.WritePump()
	client.ReadPump()

	log.SessionOp(sessionID, "ws").Info("Event stream detached")
})
