package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bimasaputra/lendtrack/internal/dto"
	"github.com/bimasaputra/lendtrack/internal/engine"
)

type ScanHandler struct {
	engine *engine.Engine
}

func NewScanHandler(eng *engine.Engine) *ScanHandler {
	return &ScanHandler{engine: eng}
}

// Scan handles POST /api/scan: the HTTP ingress for badge reads. The
// response body is the same outcome envelope realtime subscribers see.
func (h *ScanHandler) Scan(c *fiber.Ctx) error {
	var req dto.ScanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	if strings.TrimSpace(req.UID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "uid is required",
		})
	}

	out, err := h.engine.ProcessScan(c.UserContext(), engine.ScanEvent{
		UID:        req.UID,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		if out != nil {
			// Persisted nothing; the outcome names the failure.
			return c.Status(fiber.StatusInternalServerError).JSON(out)
		}
		if errors.Is(err, engine.ErrInvalidUID) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		// UID lock wait expired: nothing happened, safe to retry.
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{
			Error: true, Message: "Scan is busy, retry shortly",
		})
	}
	return c.JSON(out)
}
