package engine

import (
	"context"
	"strings"
	"time"

	"github.com/bimasaputra/lendtrack/internal/models"
)

// OutcomeKind tags the result of processing one scan event.
type OutcomeKind string

const (
	OutcomeRegisterRequired OutcomeKind = "register_required"
	OutcomeBlocked          OutcomeKind = "blocked"
	OutcomeBorrow           OutcomeKind = "borrow"
	OutcomeReturn           OutcomeKind = "return"
	OutcomeError            OutcomeKind = "error"
)

// ScanEvent is the canonical scan, identical regardless of whether the
// UID arrived over HTTP or from the broker stream.
type ScanEvent struct {
	UID        string
	ReceivedAt time.Time
}

// Outcome is the payload returned to the synchronous caller and fanned
// out to the broker topic and realtime subscribers.
type Outcome struct {
	Kind         OutcomeKind         `json:"action"`
	Success      bool                `json:"success"`
	UID          string              `json:"uid"`
	User         *models.User        `json:"user,omitempty"`
	Transaction  *models.Transaction `json:"transaction,omitempty"`
	Message      string              `json:"message"`
	BlockedUntil *time.Time          `json:"blockedUntil,omitempty"`
}

// OutcomePublisher fans a finished outcome out to external channels.
// Failures must not roll back the already-persisted transition; the
// engine logs them and moves on.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, out *Outcome) error
}

// Policy holds the penalty constants: a return later than the threshold
// is flagged late and blocks the user for the block duration.
type Policy struct {
	LateThresholdMinutes int `json:"lateThresholdMinutes"`
	BlockDurationMinutes int `json:"blockDurationMinutes"`
}

// PolicyProvider returns the policy snapshot in effect for a scan.
type PolicyProvider interface {
	Current() Policy
}

// FixedPolicy is a PolicyProvider that always returns the same values.
type FixedPolicy Policy

func (p FixedPolicy) Current() Policy { return Policy(p) }

// NormalizeUID canonicalizes a raw badge read: surrounding whitespace
// stripped, uppercased.
func NormalizeUID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
