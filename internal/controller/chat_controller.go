package controller

import (
	"oncare-chatbot-be/internal/dto"
	"oncare-chatbot-be/internal/pkg/serverutils"
	"oncare-chatbot-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Chat(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

// RegisterRoutes mounts the public patient endpoints. They are not behind JWT.
func (c *chatController) RegisterRoutes(r fiber.Router) {
	r.Post("/chat", c.Chat)
	r.Get("/health", c.Health)
}

// Chat answers with 200 for answered, refused and abstained questions alike.
func (c *chatController) Chat(ctx *fiber.Ctx) error {
	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Chat(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(res)
}

func (c *chatController) Health(ctx *fiber.Ctx) error {
	if err := c.chatService.Health(ctx.UserContext()); err != nil {
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(dto.HealthResponse{Status: "unavailable"})
	}
	return ctx.JSON(dto.HealthResponse{Status: "ok"})
}
