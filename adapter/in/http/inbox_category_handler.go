package http

import (
	"inbox_server/core/domain"
	"inbox_server/core/port/in"
	"inbox_server/pkg/apperr"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
)

// CategoryHandler manages an account's categories.
type CategoryHandler struct {
	categories in.CategoryUseCase
}

func NewCategoryHandler(categories in.CategoryUseCase) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

func (h *CategoryHandler) Register(router fiber.Router) {
	cat := router.Group("/categories")
	cat.Get("/", h.List)
	cat.Post("/", h.Create)
	cat.Post("/seed", h.Seed)
	cat.Delete("/:id", h.Delete)
}

func (h *CategoryHandler) List(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}
	cats, err := h.categories.List(c.UserContext(), accountID)
	if err != nil {
		return err
	}
	if cats == nil {
		cats = []*domain.CategoryWithCount{}
	}
	return c.JSON(fiber.Map{"categories": cats})
}

type createCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *CategoryHandler) Create(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}

	var req createCategoryRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return apperr.BadRequest("invalid request body")
	}

	cat, err := h.categories.Create(c.UserContext(), accountID, req.Name, req.Description)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cat)
}

func (h *CategoryHandler) Seed(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}
	created, err := h.categories.SeedDefaults(c.UserContext(), accountID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "created": created})
}

// Delete removes the category and reports how many emails became uncategorized.
func (h *CategoryHandler) Delete(c *fiber.Ctx) error {
	accountID, err := GetAccountID(c)
	if err != nil {
		return err
	}
	categoryID, err := parseIDParam(c, "id")
	if err != nil {
		return err
	}

	detached, err := h.categories.Delete(c.UserContext(), accountID, categoryID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"status":          "success",
		"emails_detached": detached,
	})
}
