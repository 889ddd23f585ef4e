package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lab-inventory/internal/service"
)

// UserHandler serves the admin user management endpoints. The router wraps
// these with the admin role gate.
type UserHandler struct {
	Svc *service.Inventory
}

func NewUserHandler(svc *service.Inventory) *UserHandler {
	return &UserHandler{Svc: svc}
}

// List returns every local user with its role names.
func (h *UserHandler) List(c echo.Context) error {
	users, err := h.Svc.ListUsers(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, users)
}

type userPutReq struct {
	Roles     []string `json:"roles"`
	Email     *string  `json:"email"`
	FirstName *string  `json:"first_name"`
	LastName  *string  `json:"last_name"`
}

// Put creates or updates the user named in the path and assigns it exactly
// the given role set. Unknown role names yield 400.
func (h *UserHandler) Put(c echo.Context) error {
	username := strings.TrimSpace(c.Param("username"))
	if username == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username required"})
	}
	var req userPutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	u, err := h.Svc.SetUserRoles(c.Request().Context(), username, req.Roles,
		req.Email, req.FirstName, req.LastName)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}
