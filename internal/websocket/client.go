package websocket

import (
	"context"
	"encoding/json"
	"time"

	"oncare-chatbot-be/internal/dto"
	"oncare-chatbot-be/internal/pkg/serverutils"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ChatService answers one question frame.
type ChatService interface {
	Chat(ctx context.Context, req *dto.ChatRequest) (*dto.ChatResponse, error)
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	SessionID uuid.UUID

	// Buffered channel of outbound messages.
	Send chan []byte

	chat ChatService
}

// readPump answers question frames in order until the connection closes. ctx is cancelled when
// the peer goes away so an in-flight question stops early.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		if !c.Hub.Unregister(c) {
			close(c.Send)
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{"session_id": c.SessionID, "error": err.Error()})
			}
			return
		}

		reply := HandleFrame(ctx, c.chat, raw)
		select {
		case c.Send <- reply:
		case <-ctx.Done():
			return
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleFrame turns one inbound frame into one outbound frame. Errors become "error" frames
// carrying the same fixed messages as the HTTP API.
func HandleFrame(ctx context.Context, chat ChatService, raw []byte) []byte {
	var req dto.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return encodeFrame(dto.ChatSocketFrame{Type: "error", Message: "Invalid request body"})
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		_, body := serverutils.MapError(err)
		return encodeFrame(dto.ChatSocketFrame{Type: "error", Message: body.Message})
	}

	res, err := chat.Chat(ctx, &req)
	if err != nil {
		_, body := serverutils.MapError(err)
		return encodeFrame(dto.ChatSocketFrame{Type: "error", Message: body.Message})
	}
	return encodeFrame(dto.ChatSocketFrame{Type: "answer", Payload: res})
}

func encodeFrame(frame dto.ChatSocketFrame) []byte {
	data, _ := json.Marshal(frame)
	return data
}
