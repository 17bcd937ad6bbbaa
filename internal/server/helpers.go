package server

import (
	"errors"
	"log/slog"

	"pawfeed/internal/models"
	"pawfeed/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// errorHandler maps AppError kinds onto HTTP statuses. Fiber's own errors keep
// their status.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	return respondWithError(c, err)
}

func respondWithError(c *fiber.Ctx, err error) error {
	appErr := models.AsAppError(err)
	status := appErr.StatusCode()
	if status >= fiber.StatusInternalServerError {
		observability.Logger.ErrorContext(c.UserContext(), "request error",
			slog.String("path", c.Path()),
			slog.String("error", appErr.Error()),
		)
	}
	return c.Status(status).JSON(models.ErrorResponse{
		Error: appErr.Message,
		Code:  appErr.Code,
	})
}

// respondResult writes an interaction Result. Failures keep the Result body so
// clients can restore the rolled-back state.
func respondResult(c *fiber.Ctx, r models.Result) error {
	if r.Success {
		return c.JSON(r)
	}
	status := fiber.StatusInternalServerError
	if r.Error != nil {
		status = r.Error.StatusCode()
	}
	return c.Status(status).JSON(r)
}

const maxLimit = 100

// queryLimit reads ?limit= and clamps it; zero lets the service pick its default.
func queryLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return 0
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	return nil
}
