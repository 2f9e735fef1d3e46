package services

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/server/models"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/repomanager"
)

// LicenseError is returned when the active license does not allow the
// requested operation. It unwraps to common.ErrLicenseInvalid or
// common.ErrNoLicense.
type LicenseError struct {
	Status license.Status
	base   error
}

func (e *LicenseError) Error() string {
	if len(e.Status.Errors) == 0 {
		return e.Unwrap().Error()
	}
	return e.Unwrap().Error() + ": " + strings.Join(e.Status.Errors, "; ")
}

func (e *LicenseError) Unwrap() error {
	if e.base == nil {
		return common.ErrLicenseInvalid
	}
	return e.base
}

// LicenseService evaluates and replaces the server license. Without a
// configured issuer key every check passes.
type LicenseService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	key         ed25519.PublicKey
	log         logging.Logger
	now         func() time.Time
}

func NewLicenseService(db *sql.DB, m repomanager.RepositoryManager, key ed25519.PublicKey, log logging.Logger) *LicenseService {
	return &LicenseService{db: db, repomanager: m, key: key, log: log, now: time.Now}
}

// Enabled reports whether license checks are enforced.
func (s *LicenseService) Enabled() bool { return len(s.key) > 0 }

// status evaluates the active license with extraSeats added to the number
// of active workers.
func (s *LicenseService) status(ctx context.Context, extraSeats int) (license.Status, *models.License, error) {
	seats, err := s.repomanager.Users(s.db).CountActive(ctx)
	if err != nil {
		return license.Status{}, nil, err
	}
	seats += extraSeats

	if !s.Enabled() {
		return license.Status{IsValid: true, Errors: []string{}, Warnings: []string{}, SeatsUsed: seats}, nil, nil
	}

	active, err := s.repomanager.Licenses(s.db).GetActive(ctx)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return license.Status{Errors: []string{"no active license"}, Warnings: []string{}, SeatsUsed: seats}, nil, nil
		}
		return license.Status{}, nil, err
	}

	return license.CheckStatusBytes(active.Document, s.key, seats, s.now()), active, nil
}

func (s *LicenseService) Status(ctx context.Context) (license.Status, error) {
	st, _, err := s.status(ctx, 0)
	return st, err
}

// Check returns a *LicenseError unless the active license is valid for the
// current workers plus extraSeats.
func (s *LicenseService) Check(ctx context.Context, extraSeats int) error {
	st, active, err := s.status(ctx, extraSeats)
	if err != nil {
		return err
	}
	if st.IsValid {
		return nil
	}
	if s.Enabled() && active == nil {
		return &LicenseError{Status: st, base: common.ErrNoLicense}
	}
	return &LicenseError{Status: st, base: common.ErrLicenseInvalid}
}

// Active returns the active license document, or nil when there is none.
func (s *LicenseService) Active(ctx context.Context) (json.RawMessage, error) {
	l, err := s.repomanager.Licenses(s.db).GetActive(ctx)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return json.RawMessage(l.Document), nil
}

// Upload verifies raw against the issuer key and makes it the active
// license. The returned status reflects the new license.
func (s *LicenseService) Upload(ctx context.Context, raw []byte) (license.Status, error) {
	if !s.Enabled() {
		return license.Status{}, fmt.Errorf("%w: license public key is not configured", common.ErrValidation)
	}
	l, err := license.Parse(raw)
	if err != nil {
		return license.Status{}, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	if !license.Verify(l, s.key) {
		return license.Status{}, fmt.Errorf("%w: license signature is invalid", common.ErrValidation)
	}
	d, err := l.Decode()
	if err != nil {
		return license.Status{}, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	doc, err := l.Compact()
	if err != nil {
		return license.Status{}, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Licenses(tx)
		if err := repo.DeactivateAll(ctx); err != nil {
			return err
		}
		_, err := repo.Insert(ctx, &models.License{LicenseID: d.LicenseID, Document: doc})
		return err
	})
	if err != nil {
		return license.Status{}, err
	}
	s.log.Info(ctx, "license uploaded", "license_id", d.LicenseID, "seats_max", d.SeatsMax)

	return s.Status(ctx)
}
