package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/bimasaputra/lendtrack/internal/dto"
	"github.com/bimasaputra/lendtrack/internal/engine"
	"github.com/bimasaputra/lendtrack/internal/services"
)

type PolicyHandler struct {
	policy *services.PolicyService
}

func NewPolicyHandler(policy *services.PolicyService) *PolicyHandler {
	return &PolicyHandler{policy: policy}
}

// Get handles GET /api/policy.
func (h *PolicyHandler) Get(c *fiber.Ctx) error {
	return c.JSON(h.policy.Current())
}

// Update handles PUT /api/admin/policy. Applies to scans admitted after
// the change.
func (h *PolicyHandler) Update(c *fiber.Ctx) error {
	var pol engine.Policy
	if err := c.BodyParser(&pol); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if err := h.policy.Update(pol); err != nil {
		if errors.Is(err, services.ErrInvalidPolicy) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to update policy",
		})
	}
	return c.JSON(h.policy.Current())
}
