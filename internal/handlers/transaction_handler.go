package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/bimasaputra/lendtrack/internal/dto"
	"github.com/bimasaputra/lendtrack/internal/engine"
	"github.com/bimasaputra/lendtrack/internal/models"
)

type TransactionHandler struct {
	db *gorm.DB
}

func NewTransactionHandler(db *gorm.DB) *TransactionHandler {
	return &TransactionHandler{db: db}
}

// List handles GET /api/transactions. Optional ?uid= narrows to one
// badge; newest first.
func (h *TransactionHandler) List(c *fiber.Ctx) error {
	query := h.db.Order("created_at DESC")
	if uid := c.Query("uid"); uid != "" {
		query = query.Where("uid = ?", engine.NormalizeUID(uid))
	}

	limit := c.QueryInt("limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var transactions []models.Transaction
	if err := query.Limit(limit).Find(&transactions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to fetch transactions",
		})
	}
	return c.JSON(dto.TransactionListResponse{Success: true, Transactions: transactions})
}
