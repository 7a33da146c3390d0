package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"ai-library-agent/internal/service"
	"ai-library-agent/pkg/actions"
	"ai-library-agent/pkg/library"
	"ai-library-agent/pkg/reconcile"
	"ai-library-agent/pkg/refresolver"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns errors returned by handlers into the
// ErrorResponse envelope with a matching status code.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}
		code, message := StatusFor(err)
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}

// StatusFor maps an error to an HTTP status and a client-facing message.
func StatusFor(err error) (int, string) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, fe.Message
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
		return fiber.StatusBadRequest, strings.Join(fields, "; ")
	}

	switch {
	case errors.Is(err, service.ErrThreadNotFound),
		errors.Is(err, actions.ErrNotFound),
		errors.Is(err, library.ErrNotFound):
		return fiber.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrThreadForbidden):
		return fiber.StatusForbidden, err.Error()
	case errors.Is(err, actions.ErrInvalidTransition),
		errors.Is(err, reconcile.ErrBusy):
		return fiber.StatusConflict, err.Error()
	case errors.Is(err, actions.ErrInvalidProposal),
		errors.Is(err, actions.ErrUnknownActionType),
		errors.Is(err, refresolver.ErrMissingSourceID):
		return fiber.StatusBadRequest, err.Error()
	case errors.Is(err, reconcile.ErrNoAcknowledger),
		errors.Is(err, reconcile.ErrAckIncomplete):
		return fiber.StatusBadGateway, err.Error()
	}
	return fiber.StatusInternalServerError, err.Error()
}
