// Package engine implements the borrow/return transaction engine: the
// decision logic that maps an incoming badge scan to the single correct
// state transition, computes duration and lateness, applies the blocking
// policy, and persists the result atomically. All ledger mutation in the
// service goes through here, serialized per UID.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bimasaputra/lendtrack/internal/keylock"
	"github.com/bimasaputra/lendtrack/internal/models"
)

var (
	ErrInvalidUID = errors.New("uid is required")
	ErrUIDTaken   = errors.New("uid already registered")
	ErrEmailTaken = errors.New("email already registered")

	// ErrNoOpenLoan reports ledger corruption: a user flagged as
	// currently borrowing has no open borrow transaction. The engine
	// surfaces it and refuses to fabricate one.
	ErrNoOpenLoan = errors.New("no open borrow transaction for borrowing user")
)

// Options tune engine behavior at construction time.
type Options struct {
	// AutoRegister makes a bare scan of an unknown UID create a
	// placeholder user and borrow immediately instead of answering
	// register_required. Deployment choice, off by default.
	AutoRegister bool

	// LockTimeout bounds how long a scan may wait for its UID lock
	// before failing with a retryable error. Zero means wait as long as
	// the caller's context allows.
	LockTimeout time.Duration

	// Clock overrides time.Now for operations that are not driven by a
	// scan event's ReceivedAt. Tests use it; production leaves it nil.
	Clock func() time.Time
}

// Engine executes the borrow/return state machine.
type Engine struct {
	db        *gorm.DB
	locks     *keylock.KeyedMutex
	publisher OutcomePublisher
	policy    PolicyProvider

	autoRegister bool
	lockTimeout  time.Duration
	now          func() time.Time
}

func New(db *gorm.DB, publisher OutcomePublisher, policy PolicyProvider, opts Options) *Engine {
	now := opts.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		db:           db,
		locks:        keylock.New(),
		publisher:    publisher,
		policy:       policy,
		autoRegister: opts.AutoRegister,
		lockTimeout:  opts.LockTimeout,
		now:          now,
	}
}

// ProcessScan runs the full transition for one scan event. The returned
// outcome is durable: a success outcome means the ledger write has
// committed. Decision-level conditions (unknown UID, blocked user) are
// normal outcomes with a nil error; storage failures return an
// error-kind outcome alongside the error. A nil outcome with a non-nil
// error means the UID lock could not be acquired in time and the scan is
// safe to retry.
func (e *Engine) ProcessScan(ctx context.Context, ev ScanEvent) (*Outcome, error) {
	uid := NormalizeUID(ev.UID)
	if uid == "" {
		return nil, ErrInvalidUID
	}
	now := ev.ReceivedAt
	if now.IsZero() {
		now = e.now()
	}

	var out *Outcome
	err := e.runLocked(ctx, uid, func() error {
		o, terr := e.transition(ctx, uid, now)
		out = o
		if o != nil {
			e.fanOut(ctx, o)
		}
		return terr
	})
	if err != nil && out == nil {
		return nil, err
	}
	return out, err
}

// RegisterInput is a first-contact enrollment request.
type RegisterInput struct {
	UID   string
	Name  string
	Email string
	Phone string
}

// Register creates the user and immediately runs the borrow step on it,
// in one DB transaction under the UID lock. Rejects duplicate UID or
// email. The borrow path is shared with ProcessScan so the open-loan
// invariant is enforced from a single place.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*Outcome, error) {
	uid := NormalizeUID(in.UID)
	if uid == "" {
		return nil, ErrInvalidUID
	}
	email := strings.TrimSpace(in.Email)

	var out *Outcome
	err := e.runLocked(ctx, uid, func() error {
		terr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var existing models.User
			err := tx.First(&existing, "uid = ?", uid).Error
			if err == nil {
				return ErrUIDTaken
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if email != "" {
				err = tx.First(&existing, "email = ?", email).Error
				if err == nil {
					return ErrEmailTaken
				}
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
			}

			user := e.newUser(uid, in.Name, email, in.Phone)
			if err := tx.Create(user).Error; err != nil {
				return err
			}

			o, err := e.borrowStep(tx, user, e.now())
			if err != nil {
				return err
			}
			o.Message = "User registered and borrowed a book"
			out = o
			return nil
		})
		if terr == nil && out != nil {
			e.fanOut(ctx, out)
		}
		return terr
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteUser removes a user and all their transactions. It runs under
// the UID lock so it can never interleave with an in-flight scan.
func (e *Engine) DeleteUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := e.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	err := e.runLocked(ctx, user.UID, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("uid = ?", user.UID).Delete(&models.Transaction{}).Error; err != nil {
				return err
			}
			return tx.Delete(&models.User{}, "id = ?", user.ID).Error
		})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (e *Engine) runLocked(ctx context.Context, uid string, fn func() error) error {
	acquireCtx := ctx
	if e.lockTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, e.lockTimeout)
		defer cancel()
	}
	return e.locks.RunExclusive(acquireCtx, uid, fn)
}

// transition executes steps 1-5 of the state machine inside one DB
// transaction. The serializer guarantees no other transition for this
// UID is in flight.
func (e *Engine) transition(ctx context.Context, uid string, now time.Time) (*Outcome, error) {
	var out *Outcome
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		err := tx.First(&user, "uid = ?", uid).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if !e.autoRegister {
				out = &Outcome{
					Kind:    OutcomeRegisterRequired,
					Success: true,
					UID:     uid,
					Message: "User is not registered yet, please register first",
				}
				return nil
			}
			created := e.newUser(uid, "", "", "")
			if err := tx.Create(created).Error; err != nil {
				return err
			}
			user = *created
		case err != nil:
			return err
		}

		if user.Status == models.UserStatusBlocked {
			if user.BlockedUntil != nil && user.BlockedUntil.After(now) {
				until := *user.BlockedUntil
				remaining := until.Sub(now).Round(time.Minute)
				out = &Outcome{
					Kind:         OutcomeBlocked,
					Success:      false,
					UID:          uid,
					User:         &user,
					BlockedUntil: &until,
					Message: fmt.Sprintf("User is blocked until %s (%s remaining)",
						until.Format(time.RFC3339), remaining),
				}
				return nil
			}
			// Block has elapsed: reactivate and process this same scan
			// with the now-active state.
			user.Status = models.UserStatusActive
			user.BlockedUntil = nil
		}

		if user.CurrentlyBorrowing {
			o, err := e.returnStep(tx, &user, now)
			if err != nil {
				return err
			}
			out = o
			return nil
		}

		o, err := e.borrowStep(tx, &user, now)
		if err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		msg := "Failed to process scan"
		if errors.Is(err, ErrNoOpenLoan) {
			msg = "Ledger inconsistency: user is marked borrowing but has no open loan"
		}
		return &Outcome{Kind: OutcomeError, UID: uid, Message: msg}, err
	}
	return out, nil
}

// returnStep closes the open borrow, writes the mirror return row and
// applies the lateness policy.
func (e *Engine) returnStep(tx *gorm.DB, user *models.User, now time.Time) (*Outcome, error) {
	var open models.Transaction
	err := tx.Where("uid = ? AND action = ? AND is_returned = ?", user.UID, models.ActionBorrow, false).
		Order("timestamp DESC").
		First(&open).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoOpenLoan
	}
	if err != nil {
		return nil, err
	}

	// Whole minutes, floored; strict > at the threshold so a loan of
	// exactly the threshold is on time.
	minutes := int(now.Sub(open.Timestamp).Minutes())
	if minutes < 0 {
		minutes = 0
	}
	pol := e.policy.Current()
	isLate := minutes > pol.LateThresholdMinutes

	returnedAt := now
	open.IsReturned = true
	open.ReturnedAt = &returnedAt
	open.Duration = &minutes
	open.IsLate = isLate
	if err := tx.Save(&open).Error; err != nil {
		return nil, err
	}

	ret := models.Transaction{
		ID:        uuid.New(),
		UID:       user.UID,
		Action:    models.ActionReturn,
		BookTitle: open.BookTitle,
		Timestamp: now,
		Duration:  &minutes,
		IsLate:    isLate,
	}
	if err := tx.Create(&ret).Error; err != nil {
		return nil, err
	}

	user.CurrentlyBorrowing = false
	user.TotalReturned++

	var msg string
	if isLate {
		until := now.Add(time.Duration(pol.BlockDurationMinutes) * time.Minute)
		user.Status = models.UserStatusBlocked
		user.BlockedUntil = &until
		msg = fmt.Sprintf("Book returned late (%dh %dm). User blocked for %s.",
			minutes/60, minutes%60, time.Duration(pol.BlockDurationMinutes)*time.Minute)
	} else {
		msg = fmt.Sprintf("Book returned on time (%dh %dm)", minutes/60, minutes%60)
	}
	if err := tx.Save(user).Error; err != nil {
		return nil, err
	}

	out := &Outcome{
		Kind:        OutcomeReturn,
		Success:     true,
		UID:         user.UID,
		User:        user,
		Transaction: &ret,
		Message:     msg,
	}
	if user.BlockedUntil != nil {
		out.BlockedUntil = user.BlockedUntil
	}
	return out, nil
}

// borrowStep opens a new loan. Shared by scans and registration.
func (e *Engine) borrowStep(tx *gorm.DB, user *models.User, now time.Time) (*Outcome, error) {
	borrow := models.Transaction{
		ID:        uuid.New(),
		UID:       user.UID,
		Action:    models.ActionBorrow,
		BookTitle: models.DefaultBookTitle,
		Timestamp: now,
	}
	if err := tx.Create(&borrow).Error; err != nil {
		return nil, err
	}

	user.CurrentlyBorrowing = true
	user.TotalBorrowed++
	if err := tx.Save(user).Error; err != nil {
		return nil, err
	}

	return &Outcome{
		Kind:        OutcomeBorrow,
		Success:     true,
		UID:         user.UID,
		User:        user,
		Transaction: &borrow,
		Message:     "Book borrowed successfully",
	}, nil
}

func (e *Engine) newUser(uid, name, email, phone string) *models.User {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "User_" + uid
	}
	user := &models.User{
		ID:     uuid.New(),
		UID:    uid,
		Name:   name,
		Phone:  strings.TrimSpace(phone),
		Status: models.UserStatusActive,
	}
	if email != "" {
		user.Email = &email
	}
	return user
}

// fanOut publishes the outcome after the ledger write has committed,
// still inside the UID critical section so per-UID publish order matches
// ledger order. Publish failure degrades delivery, never the scan.
func (e *Engine) fanOut(ctx context.Context, out *Outcome) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishOutcome(ctx, out); err != nil {
		slog.Error("outcome publish failed",
			"uid", out.UID, "action", string(out.Kind), "error", err.Error())
	}
}
