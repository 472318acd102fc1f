package storage

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes serves objects written by a LocalBackend.
func RegisterRoutes(r fiber.Router, backend *LocalBackend) {
	r.Static("/media", backend.Dir, fiber.Static{
		ByteRange: true,
	})
}
