package handler

import (
	"oncare-chatbot-be/internal/pkg/logger"
	internalWS "oncare-chatbot-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ChatSocketHandler upgrades anonymous patient connections to chat sessions.
type ChatSocketHandler struct {
	chat   internalWS.ChatService
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewChatSocketHandler(chat internalWS.ChatService, hub *internalWS.Hub, log logger.ILogger) *ChatSocketHandler {
	return &ChatSocketHandler{
		chat:   chat,
		hub:    hub,
		logger: log,
	}
}

func (h *ChatSocketHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/chat/ws", h.ServeWs)
}

func (h *ChatSocketHandler) ServeWs(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			internalWS.ServeWs(h.hub, conn, h.chat)
		})(c)
	}

	h.logger.Warn("ChatSocketHandler", "Non-websocket request on chat socket", map[string]interface{}{"ip": c.IP()})
	return fiber.ErrUpgradeRequired
}
