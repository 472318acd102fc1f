package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts credential issuance under r. Accounts are created by
// the public signup flow, so there is no register route here.
func RegisterRoutes(r fiber.Router, svc *Service) {
	h := tokenHandlers{svc: svc}
	r.Post("/login", h.login)
	r.Post("/refresh", h.refresh)
	r.Get("/jwt/verify", JWTMiddleware(svc), h.verify)
}

type tokenHandlers struct {
	svc *Service
}

func (h tokenHandlers) login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "email and password required")
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(fiber.StatusBadRequest, "email and password required")
	}

	_, tokens, err := h.svc.Login(c.UserContext(), req)
	switch {
	case errors.Is(err, ErrInvalidLogin):
		return fiber.NewError(fiber.StatusUnauthorized, ErrInvalidLogin.Error())
	case err != nil:
		return fiber.NewError(fiber.StatusInternalServerError, "login failed")
	}
	return c.JSON(tokens)
}

// refresh trades a refresh token for a new pair and revokes the old one.
func (h tokenHandlers) refresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "refresh_token required")
	}

	tokens, err := h.svc.RotateRefreshToken(c.UserContext(), strings.TrimSpace(req.RefreshToken))
	switch {
	case errors.Is(err, ErrInvalidRefresh):
		return fiber.NewError(fiber.StatusUnauthorized, ErrInvalidRefresh.Error())
	case err != nil:
		return fiber.NewError(fiber.StatusInternalServerError, "could not issue tokens")
	}
	return c.JSON(tokens)
}

func (h tokenHandlers) verify(c *fiber.Ctx) error {
	id, ok := identityOf(c)
	if !ok {
		return fiber.NewError(fiber.StatusForbidden, ErrInvalidCredential.Error())
	}
	return c.JSON(fiber.Map{"user_id": id.UserID, "email": id.Email})
}

// parseBearer extracts the token from an "Authorization: Bearer <token>" header.
func parseBearer(header string) string {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
