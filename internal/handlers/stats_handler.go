package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/bimasaputra/lendtrack/internal/dto"
	"github.com/bimasaputra/lendtrack/internal/models"
)

type StatsHandler struct {
	db *gorm.DB
}

func NewStatsHandler(db *gorm.DB) *StatsHandler {
	return &StatsHandler{db: db}
}

// Dashboard handles GET /api/stats.
func (h *StatsHandler) Dashboard(c *fiber.Ctx) error {
	var stats dto.Stats

	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.TotalUsers, h.db.Model(&models.User{})},
		{&stats.ActiveUsers, h.db.Model(&models.User{}).Where("status = ?", models.UserStatusActive)},
		{&stats.BlockedUsers, h.db.Model(&models.User{}).Where("status = ?", models.UserStatusBlocked)},
		{&stats.CurrentlyBorrowing, h.db.Model(&models.User{}).Where("currently_borrowing = ?", true)},
		{&stats.TotalTransactions, h.db.Model(&models.Transaction{})},
		{&stats.TotalBorrows, h.db.Model(&models.Transaction{}).Where("action = ?", models.ActionBorrow)},
		{&stats.TotalReturns, h.db.Model(&models.Transaction{}).Where("action = ?", models.ActionReturn)},
	}
	for _, count := range counts {
		if err := count.query.Count(count.dest).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: true, Message: "Failed to fetch stats",
			})
		}
	}

	return c.JSON(dto.StatsResponse{Success: true, Stats: stats})
}
