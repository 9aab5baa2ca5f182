package dto

import "github.com/bimasaputra/lendtrack/internal/models"

// ScanRequest is an HTTP-ingested badge read.
type ScanRequest struct {
	UID string `json:"uid"`
}

// RegisterUserRequest enrolls a badge with profile fields. Only the UID
// is mandatory; a missing name gets a synthesized placeholder.
type RegisterUserRequest struct {
	UID   string `json:"uid"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type UserListResponse struct {
	Success bool          `json:"success"`
	Users   []models.User `json:"users"`
}

type TransactionListResponse struct {
	Success      bool                 `json:"success"`
	Transactions []models.Transaction `json:"transactions"`
}

type DeleteUserResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Deleted models.User `json:"deletedUser"`
}

type Stats struct {
	TotalUsers         int64 `json:"totalUsers"`
	ActiveUsers        int64 `json:"activeUsers"`
	BlockedUsers       int64 `json:"blockedUsers"`
	CurrentlyBorrowing int64 `json:"currentlyBorrowing"`
	TotalTransactions  int64 `json:"totalTransactions"`
	TotalBorrows       int64 `json:"totalBorrows"`
	TotalReturns       int64 `json:"totalReturns"`
}

type StatsResponse struct {
	Success bool  `json:"success"`
	Stats   Stats `json:"stats"`
}
