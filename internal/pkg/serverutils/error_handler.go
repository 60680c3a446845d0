package serverutils

import (
	"errors"
	"log"

	"oncare-chatbot-be/internal/constant"
	"oncare-chatbot-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into JSON responses. 5xx bodies always
// carry the generic retry message; upstream error text is logged, never returned.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		status, body := MapError(err)
		if status >= fiber.StatusInternalServerError {
			log.Printf("[ERROR] %s %s -> %d: %v", ctx.Method(), ctx.Path(), status, err)
		}
		return ctx.Status(status).JSON(body)
	}
}

// MapError decides the HTTP status and body for an error.
func MapError(err error) (int, Response) {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return fiber.StatusBadRequest, ValidationErrorResponse(validationErr.Fields)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && fiberErr.Code < fiber.StatusInternalServerError {
		return fiberErr.Code, ErrorResponse(fiberErr.Code, fiberErr.Message)
	}

	var domainErr *apperror.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Type {
		case apperror.ErrorTypeValidation, apperror.ErrorTypeMalformedChunk:
			return fiber.StatusBadRequest, ErrorResponse(fiber.StatusBadRequest, domainErr.Message)
		case apperror.ErrorTypeNotFound:
			return fiber.StatusNotFound, ErrorResponse(fiber.StatusNotFound, domainErr.Message)
		case apperror.ErrorTypeConflict:
			return fiber.StatusConflict, ErrorResponse(fiber.StatusConflict, domainErr.Message)
		case apperror.ErrorTypeUpstreamUnavailable:
			return fiber.StatusServiceUnavailable, ErrorResponse(fiber.StatusServiceUnavailable, constant.GenericErrorMessage)
		}
	}

	return fiber.StatusInternalServerError, ErrorResponse(fiber.StatusInternalServerError, constant.GenericErrorMessage)
}
