package controller

import (
	"ai-library-agent/internal/dto"
	"ai-library-agent/internal/pkg/serverutils"
	"ai-library-agent/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ILibraryController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	ListRecords(ctx *fiber.Ctx) error
	ShowRecord(ctx *fiber.Ctx) error
	SaveAttachment(ctx *fiber.Ctx) error
}

type libraryController struct {
	libraryService service.ILibraryService
}

func NewLibraryController(libraryService service.ILibraryService) ILibraryController {
	return &libraryController{
		libraryService: libraryService,
	}
}

func (c *libraryController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/library/v1")
	h.Use(auth)
	h.Get("records", c.ListRecords)
	h.Get("records/:key", c.ShowRecord)
	h.Put("attachments", c.SaveAttachment)
}

func (c *libraryController) ListRecords(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 50)
	offset := ctx.QueryInt("offset", 0)

	res, err := c.libraryService.ListRecords(ctx.UserContext(), limit, offset)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list records", res))
}

func (c *libraryController) ShowRecord(ctx *fiber.Ctx) error {
	res, err := c.libraryService.ShowRecord(ctx.UserContext(), ctx.Params("key"))
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show record", res))
}

// SaveAttachment registers a document the viewer can open, so annotations
// and warnings can refer to it.
func (c *libraryController) SaveAttachment(ctx *fiber.Ctx) error {
	var req dto.SaveAttachmentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.libraryService.SaveAttachment(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success save attachment", res))
}
