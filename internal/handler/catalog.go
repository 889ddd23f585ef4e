package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lab-inventory/internal/repository"
)

// CatalogHandler serves the device type and status reference tables.
type CatalogHandler struct {
	Catalog *repository.CatalogRepo
}

func NewCatalogHandler(catalog *repository.CatalogRepo) *CatalogHandler {
	return &CatalogHandler{Catalog: catalog}
}

func (h *CatalogHandler) ListTypes(c echo.Context) error {
	types, err := h.Catalog.ListTypes(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, types)
}

type typeCreateReq struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

func (h *CatalogHandler) CreateType(c echo.Context) error {
	var req typeCreateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}
	t, err := h.Catalog.CreateType(c.Request().Context(), req.Name, req.Description)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *CatalogHandler) ListStatuses(c echo.Context) error {
	statuses, err := h.Catalog.ListStatuses(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, statuses)
}

type statusCreateReq struct {
	Name string `json:"name"`
}

// CreateStatus adds a custom status row. The three canonical statuses are
// seeded at startup; extra ones are display-only and never produced by the
// loan state machine.
func (h *CatalogHandler) CreateStatus(c echo.Context) error {
	var req statusCreateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}
	s, err := h.Catalog.CreateStatus(c.Request().Context(), req.Name)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}
