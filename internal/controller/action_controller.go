package controller

import (
	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/pkg/serverutils"
	"ai-library-agent/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IActionController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Apply(ctx *fiber.Ctx) error
	ApplyAll(ctx *fiber.Ctx) error
	Reject(ctx *fiber.Ctx) error
	Undo(ctx *fiber.Ctx) error
	MarkError(ctx *fiber.Ctx) error
	RetryAcks(ctx *fiber.Ctx) error
	Validate(ctx *fiber.Ctx) error
	History(ctx *fiber.Ctx) error
}

type actionController struct {
	actionService service.IActionService
	auditService  service.IActionAuditService
}

func NewActionController(actionService service.IActionService, auditService service.IActionAuditService) IActionController {
	return &actionController{
		actionService: actionService,
		auditService:  auditService,
	}
}

func (c *actionController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/action/v1")
	h.Use(auth)
	h.Get(":key", c.List)
	h.Get(":key/history", c.History)
	h.Post(":key/apply-all", c.ApplyAll)
	h.Post(":key/mark-error", c.MarkError)
	h.Post(":key/acks/retry", c.RetryAcks)
	h.Post(":key/validate", c.Validate)
	h.Get(":key/:id", c.Show)
	h.Post(":key/:id/apply", c.Apply)
	h.Post(":key/:id/reject", c.Reject)
	h.Post(":key/:id/undo", c.Undo)
}

func (c *actionController) List(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.ListActionsRequest
	if err := ctx.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.actionService.List(ctx.UserContext(), userID, ctx.Params("key"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list actions", res))
}

func (c *actionController) Show(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.actionService.Show(ctx.UserContext(), userID, ctx.Params("key"), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show action", res))
}

func (c *actionController) Apply(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.actionService.Apply(ctx.UserContext(), userID, ctx.Params("key"), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success apply action", res))
}

func (c *actionController) ApplyAll(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.ApplyAllRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}

	res, err := c.actionService.ApplyAll(ctx.UserContext(), userID, ctx.Params("key"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success apply actions", res))
}

func (c *actionController) Reject(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.actionService.Reject(ctx.UserContext(), userID, ctx.Params("key"), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success reject action", res))
}

func (c *actionController) Undo(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.actionService.Undo(ctx.UserContext(), userID, ctx.Params("key"), ctx.Params("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success undo action", res))
}

func (c *actionController) MarkError(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	var req dto.MarkErrorRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.actionService.MarkError(ctx.UserContext(), userID, ctx.Params("key"), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success mark actions as failed", res))
}

func (c *actionController) RetryAcks(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.actionService.RetryAcks(ctx.UserContext(), userID, ctx.Params("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success retry acknowledgments", res))
}

func (c *actionController) Validate(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	res, err := c.actionService.Validate(ctx.UserContext(), userID, ctx.Params("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success validate actions", res))
}

func (c *actionController) History(ctx *fiber.Ctx) error {
	userID, err := serverutils.UserID(ctx)
	if err != nil {
		return err
	}

	limit := ctx.QueryInt("limit", 50)
	offset := ctx.QueryInt("offset", 0)

	logs, total, err := c.auditService.History(ctx.UserContext(), userID, ctx.Params("key"), limit, offset)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show action history", fiber.Map{
		"data":  logs,
		"total": total,
		"limit": limit,
	}))
}
