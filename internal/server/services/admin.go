package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/conflict"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// AdminService maintains jobs and system settings.
type AdminService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewAdminService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *AdminService {
	return &AdminService{db: db, repomanager: m, log: log}
}

func (s *AdminService) UpsertJob(ctx context.Context, j syncapi.Job) (*syncapi.Job, error) {
	j.Code, j.Name = strings.TrimSpace(j.Code), strings.TrimSpace(j.Name)
	if j.Code == "" || j.Name == "" {
		return nil, fmt.Errorf("%w: code and name are required", common.ErrValidation)
	}
	id, err := s.repomanager.Reference(s.db).UpsertJob(ctx, j)
	if err != nil {
		return nil, err
	}
	j.ID = id
	s.log.Info(ctx, "job saved", "job_id", id, "code", j.Code)
	return &j, nil
}

// SetSetting stores a system setting. Known keys are checked for a usable
// value.
func (s *AdminService) SetSetting(ctx context.Context, key, value string) error {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key == "" {
		return fmt.Errorf("%w: key is required", common.ErrValidation)
	}
	switch key {
	case syncapi.SettingOvertimeThresholdHours:
		h, err := strconv.ParseFloat(value, 64)
		if err != nil || h <= 0 {
			return fmt.Errorf("%w: %s must be a positive number", common.ErrValidation, key)
		}
	case syncapi.SettingConflictStrategy:
		if _, err := conflict.ParseStrategy(value); err != nil {
			return fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
	}
	if err := s.repomanager.Reference(s.db).SetSetting(ctx, key, value); err != nil {
		return err
	}
	s.log.Info(ctx, "setting saved", "key", key)
	return nil
}
