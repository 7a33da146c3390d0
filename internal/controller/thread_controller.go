package controller

import (
	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/pkg/serverutils"
	"ai-library-agent/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IThreadController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	StartCompletion(ctx *fiber.Ctx) error
	CancelCompletion(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Close(ctx *fiber.Ctx) error
}

type threadController struct {
	threadService service.IThreadService
}

func NewThreadController(threadService service.IThreadService) IThreadController {
	return &threadController{
		threadService: threadService,
	}
}

func (c *threadController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/thread/v1")
	h.Use(auth)
	h.Post("completions", c.StartCompletion)
	h.Get(":key", c.Show)
	h.Delete(":key/stream", c.CancelCompletion)
	h.Delete(":key", c.Close)
}

func (c *threadController) StartCompletion(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.StartCompletionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.threadService.StartCompletion(ctx.UserContext(), userID, &req)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusAccepted).JSON(serverutils.SuccessResponse("Completion started", res))
}

func (c *threadController) CancelCompletion(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.threadService.CancelCompletion(ctx.UserContext(), userID, ctx.Params("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success cancel completion", res))
}

func (c *threadController) Show(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.threadService.Snapshot(ctx.UserContext(), userID, ctx.Params("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show thread", res))
}

func (c *threadController) Close(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	if err := c.threadService.Close(ctx.UserContext(), userID, ctx.Params("key")); err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse[any]("Success close thread", nil))
}
