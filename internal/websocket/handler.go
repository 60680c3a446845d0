package websocket

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// ServeWs runs one chat session until the peer disconnects.
func ServeWs(hub *Hub, c *websocket.Conn, chat ChatService) {
	client := &Client{Hub: hub, Conn: c, SessionID: uuid.New(), Send: make(chan []byte, 16), chat: chat}
	if !hub.Register(client) {
		hub.logger.Warn("Hub", "Hub stopped, refusing chat session", map[string]interface{}{"session_id": client.SessionID})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go client.writePump()
	client.readPump(ctx) // Run readPump in current goroutine (handler)
}
