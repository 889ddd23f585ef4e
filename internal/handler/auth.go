package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lab-inventory/internal/config"
	"github.com/iliyamo/lab-inventory/internal/service"
	"github.com/iliyamo/lab-inventory/internal/utils"
)

// AuthHandler bundles dependencies for the authentication endpoints.
type AuthHandler struct {
	Cfg config.Config
	Svc *service.Inventory
}

func NewAuthHandler(cfg config.Config, svc *service.Inventory) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Svc: svc}
}

// loginReq binds from JSON and classic form encoding alike, so both API
// clients and OAuth2-style password forms work against the same endpoint.
type loginReq struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

type tokenResp struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Expires     time.Time `json:"expires"`
}

// Login verifies the credential against the directory and returns a signed
// session token.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Username = strings.TrimSpace(req.Username)
	if !h.Cfg.AuthDisabled && (req.Username == "" || req.Password == "") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "username/password required"})
	}

	tok, err := h.Svc.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tokenResp{
		AccessToken: tok.Token,
		TokenType:   "bearer",
		Expires:     tok.Exp,
	})
}

// Me returns the caller's identity: current roles and profile when a local
// record exists, the token claims otherwise.
func (h *AuthHandler) Me(c echo.Context) error {
	claims := claimsFrom(c)
	me, err := h.Svc.CurrentUser(c.Request().Context(), claims)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, me)
}

// claimsFrom rebuilds the verified session claims stored by the JWT
// middleware.
func claimsFrom(c echo.Context) utils.SessionClaims {
	out := utils.SessionClaims{}
	if s, ok := c.Get("username").(string); ok {
		out.Subject = s
	}
	if rs, ok := c.Get("roles").([]string); ok {
		out.Roles = rs
	}
	return out
}

// actorFrom derives the acting identity for loan operations.
func actorFrom(c echo.Context) service.Actor {
	claims := claimsFrom(c)
	return service.Actor{Username: claims.Subject, Roles: claims.Roles}
}
