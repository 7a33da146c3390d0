package controller

import (
	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/pkg/serverutils"
	"ai-library-agent/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IReferenceController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	Check(ctx *fiber.Ctx) error
	CheckBulk(ctx *fiber.Ctx) error
	Status(ctx *fiber.Ctx) error
	Invalidate(ctx *fiber.Ctx) error
	Reset(ctx *fiber.Ctx) error
}

type referenceController struct {
	referenceService service.IReferenceService
}

func NewReferenceController(referenceService service.IReferenceService) IReferenceController {
	return &referenceController{
		referenceService: referenceService,
	}
}

func (c *referenceController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/reference/v1")
	h.Use(auth)
	h.Post("check", c.Check)
	h.Post("check-bulk", c.CheckBulk)
	h.Post("reset", c.Reset)
	h.Get(":source_id", c.Status)
	h.Delete(":source_id", c.Invalidate)
}

func (c *referenceController) Check(ctx *fiber.Ctx) error {
	var req dto.CheckReferenceRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.referenceService.Check(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success check reference", res))
}

func (c *referenceController) CheckBulk(ctx *fiber.Ctx) error {
	var req dto.CheckBulkReferenceRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.referenceService.CheckBulk(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success check references", res))
}

// Status answers without resolving: unknown, pending, absent or found.
func (c *referenceController) Status(ctx *fiber.Ctx) error {
	res := c.referenceService.Status(ctx.UserContext(), ctx.Params("source_id"))
	return ctx.JSON(serverutils.SuccessResponse("Success show reference status", res))
}

func (c *referenceController) Invalidate(ctx *fiber.Ctx) error {
	c.referenceService.Invalidate(ctx.UserContext(), ctx.Params("source_id"))
	return ctx.JSON(serverutils.SuccessResponse[any]("Success invalidate reference", nil))
}

func (c *referenceController) Reset(ctx *fiber.Ctx) error {
	c.referenceService.Reset(ctx.UserContext())
	return ctx.JSON(serverutils.SuccessResponse[any]("Success reset reference cache", nil))
}
