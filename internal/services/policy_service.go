package services

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bimasaputra/lendtrack/internal/engine"
	"github.com/bimasaputra/lendtrack/internal/models"
)

const (
	settingLateThreshold = "policy.late_threshold_minutes"
	settingBlockDuration = "policy.block_duration_minutes"
)

var ErrInvalidPolicy = errors.New("policy values must be positive")

// PolicyService persists the lending policy as settings rows and serves
// the engine an atomic snapshot, so policy reads never block scans.
// Changes apply to scans admitted after the update.
type PolicyService struct {
	db      *gorm.DB
	current atomic.Value // engine.Policy
}

func NewPolicyService(db *gorm.DB, defaults engine.Policy) *PolicyService {
	s := &PolicyService{db: db}
	s.current.Store(defaults)
	return s
}

// Load overlays persisted settings onto the defaults. Called at boot.
func (s *PolicyService) Load() error {
	var settings []models.Setting
	if err := s.db.Where("key IN ?", []string{settingLateThreshold, settingBlockDuration}).
		Find(&settings).Error; err != nil {
		return err
	}

	pol := s.Current()
	for _, set := range settings {
		n, err := strconv.Atoi(set.Value)
		if err != nil || n <= 0 {
			continue
		}
		switch set.Key {
		case settingLateThreshold:
			pol.LateThresholdMinutes = n
		case settingBlockDuration:
			pol.BlockDurationMinutes = n
		}
	}
	s.current.Store(pol)
	return nil
}

// Current implements engine.PolicyProvider.
func (s *PolicyService) Current() engine.Policy {
	return s.current.Load().(engine.Policy)
}

// Update validates, persists and snapshots a new policy.
func (s *PolicyService) Update(pol engine.Policy) error {
	if pol.LateThresholdMinutes <= 0 || pol.BlockDurationMinutes <= 0 {
		return ErrInvalidPolicy
	}

	rows := []models.Setting{
		{Key: settingLateThreshold, Value: strconv.Itoa(pol.LateThresholdMinutes), UpdatedAt: time.Now().UTC()},
		{Key: settingBlockDuration, Value: strconv.Itoa(pol.BlockDurationMinutes), UpdatedAt: time.Now().UTC()},
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return err
	}

	s.current.Store(pol)
	return nil
}
