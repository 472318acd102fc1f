package apperr

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// Handler answers every error with {"error": message}. PublicError and
// *fiber.Error keep their status; anything else becomes a 500. Server errors
// are logged with their cause and kind.
func Handler(log logrus.FieldLogger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := "Internal server error"

		var pub *PublicError
		var fe *fiber.Error
		switch {
		case errors.As(err, &pub):
			status, message = pub.Status, pub.Message
		case errors.As(err, &fe):
			status, message = fe.Code, fe.Message
		}

		if status >= fiber.StatusInternalServerError {
			log.WithError(err).WithFields(logrus.Fields{
				"kind":   KindOf(err).String(),
				"method": c.Method(),
				"path":   c.Path(),
				"status": status,
			}).Error(message)
		}
		return c.Status(status).JSON(fiber.Map{"error": message})
	}
}
