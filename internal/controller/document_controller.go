package controller

import (
	"oncare-chatbot-be/internal/dto"
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/internal/pkg/serverutils"
	"oncare-chatbot-be/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IDocumentController interface {
	RegisterRoutes(r fiber.Router, protected fiber.Handler)
	IngestDocuments(ctx *fiber.Ctx) error
	IngestSource(ctx *fiber.Ctx) error
	Reindex(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
}

type documentController struct {
	ingestionService service.IIngestionService
}

func NewDocumentController(ingestionService service.IIngestionService) IDocumentController {
	return &documentController{
		ingestionService: ingestionService,
	}
}

func (c *documentController) RegisterRoutes(r fiber.Router, protected fiber.Handler) {
	ingest := r.Group("/ingest", protected)
	ingest.Post("", c.IngestSource)
	ingest.Post("/documents", c.IngestDocuments)

	documents := r.Group("/documents", protected)
	documents.Get("", c.List)
	documents.Post("/:id/reindex", c.Reindex)
	documents.Delete("/:id", c.Delete)
}

func (c *documentController) IngestDocuments(ctx *fiber.Ctx) error {
	var req dto.IngestDocumentsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	docs := make([]*entity.Document, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, d.ToEntity())
	}

	results, err := c.ingestionService.IngestDocuments(ctx.UserContext(), docs)
	if err != nil {
		return err
	}

	res := dto.IngestResponse{Results: make([]dto.IngestResultDTO, 0, len(results))}
	for _, r := range results {
		res.Results = append(res.Results, toIngestResultDTO(r))
	}
	return ctx.JSON(serverutils.SuccessResponse("Documents ingested", res))
}

func (c *documentController) IngestSource(ctx *fiber.Ctx) error {
	var req dto.IngestSourceRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid request body"))
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	result, err := c.ingestionService.IngestSource(ctx.UserContext(), req.SourceURL)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Source ingested", toIngestResultDTO(result)))
}

func (c *documentController) Reindex(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid document ID"))
	}

	if err := c.ingestionService.Reindex(ctx.UserContext(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Document reindexed", nil))
}

func (c *documentController) Delete(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid document ID"))
	}

	if err := c.ingestionService.DeleteDocument(ctx.UserContext(), id); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Document deleted", nil))
}

func (c *documentController) List(ctx *fiber.Ctx) error {
	var req dto.ListDocumentsQuery
	if err := ctx.QueryParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(serverutils.ErrorResponse(400, "Invalid query parameters"))
	}

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	docs, total, err := c.ingestionService.ListDocuments(ctx.UserContext(), entity.DocumentFilter{
		Category:       req.Category,
		IncompleteOnly: req.Incomplete,
		Limit:          req.Limit,
		Offset:         req.Offset,
	})
	if err != nil {
		return err
	}

	res := dto.ListDocumentsResponse{Documents: make([]dto.DocumentSummaryDTO, 0, len(docs)), Total: total}
	for _, d := range docs {
		res.Documents = append(res.Documents, dto.NewDocumentSummaryDTO(d))
	}
	return ctx.JSON(serverutils.SuccessResponse("Documents retrieved", res))
}

func toIngestResultDTO(r *service.IngestResult) dto.IngestResultDTO {
	out := dto.IngestResultDTO{Incomplete: r.Incomplete}
	if r.Document != nil {
		out.DocumentId = r.Document.Id
		out.SourceURL = r.Document.SourceURL
	}
	if r.Stats != nil {
		out.Inserted = r.Stats.Inserted
		out.Moved = r.Stats.Moved
		out.Refreshed = r.Stats.Refreshed
		out.Unchanged = r.Stats.Unchanged
		out.Deleted = r.Stats.Deleted
	}
	if r.Err != nil {
		_, body := serverutils.MapError(r.Err)
		out.Error = body.Message
	}
	return out
}
