package handlers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bimasaputra/lendtrack/internal/dto"
	"github.com/bimasaputra/lendtrack/internal/engine"
	"github.com/bimasaputra/lendtrack/internal/models"
)

type UserHandler struct {
	db     *gorm.DB
	engine *engine.Engine
}

func NewUserHandler(db *gorm.DB, eng *engine.Engine) *UserHandler {
	return &UserHandler{db: db, engine: eng}
}

// Register handles POST /api/users: first-contact enrollment with
// auto-borrow, routed through the engine's single borrow path.
func (h *UserHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterUserRequest
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

	out, err := h.engine.Register(c.UserContext(), engine.RegisterInput{
		UID:   req.UID,
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrUIDTaken), errors.Is(err, engine.ErrEmailTaken):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: true, Message: "Failed to register user",
			})
		}
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

// List handles GET /api/users.
func (h *UserHandler) List(c *fiber.Ctx) error {
	var users []models.User
	if err := h.db.Order("created_at DESC").Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to fetch users",
		})
	}
	return c.JSON(dto.UserListResponse{Success: true, Users: users})
}

// Delete handles DELETE /api/users/:id: removes the user and all their
// transactions. The engine serializes the delete against in-flight scans
// of the same badge.
func (h *UserHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid user id",
		})
	}

	user, err := h.engine.DeleteUser(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "User not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to delete user",
		})
	}

	return c.JSON(dto.DeleteUserResponse{
		Success: true,
		Message: fmt.Sprintf("User %s and all their transactions were deleted", user.Name),
		Deleted: *user,
	})
}

// ExportCSV handles GET /api/users/export: a CSV download of all badge
// holders.
func (h *UserHandler) ExportCSV(c *fiber.Ctx) error {
	var users []models.User
	if err := h.db.Order("created_at DESC").Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to export users",
		})
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"Name", "UID", "Email", "Phone", "Status",
		"CurrentlyBorrowing", "TotalBorrowed", "TotalReturned", "RegisteredAt",
	})
	for _, u := range users {
		email := ""
		if u.Email != nil {
			email = *u.Email
		}
		_ = w.Write([]string{
			u.Name,
			u.UID,
			email,
			u.Phone,
			u.Status,
			strconv.FormatBool(u.CurrentlyBorrowing),
			strconv.Itoa(u.TotalBorrowed),
			strconv.Itoa(u.TotalReturned),
			u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to export users",
		})
	}

	filename := fmt.Sprintf("users_backup_%s.csv", time.Now().UTC().Format("2006-01-02T15-04-05"))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Send(buf.Bytes())
}
