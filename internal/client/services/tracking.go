package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/client/providers"
	"github.com/dmitrijs2005/crewclock/internal/client/queue"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/breaks"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/photos"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/reference"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/timeentries"
	"github.com/dmitrijs2005/crewclock/internal/client/syncer"
	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
	"github.com/dmitrijs2005/crewclock/internal/timex"
)

var (
	ErrActiveEntryExists = errors.New("a job is already in progress")
	ErrNoActiveEntry     = errors.New("no job in progress")
	ErrActiveBreakExists = errors.New("a break is already in progress")
	ErrNoActiveBreak     = errors.New("no break in progress")
	ErrUnknownJob        = errors.New("unknown job")
	ErrUnknownBreakType  = errors.New("unknown break type")
)

// TrackingService records a worker's day: jobs, breaks and photos. Each
// operation writes the record and its queue entry in one transaction.
type TrackingService struct {
	db       *sql.DB
	queue    *queue.Service
	location providers.LocationProvider
	log      logging.Logger
	now      func() time.Time

	// OnChange runs after every committed write, typically to refresh the
	// sync status and start a sync when online.
	OnChange func(ctx context.Context)
}

type TrackingOption func(*TrackingService)

func WithLocation(p providers.LocationProvider) TrackingOption {
	return func(s *TrackingService) { s.location = p }
}

// WithTrackingLogger replaces the default no-op logger; nil is ignored.
func WithTrackingLogger(l logging.Logger) TrackingOption {
	return func(s *TrackingService) {
		if l != nil {
			s.log = l
		}
	}
}

func WithTrackingClock(now func() time.Time) TrackingOption {
	return func(s *TrackingService) { s.now = now }
}

func NewTrackingService(db *sql.DB, q *queue.Service, opts ...TrackingOption) *TrackingService {
	s := &TrackingService{
		db:       db,
		queue:    q,
		location: providers.NoLocation{},
		log:      logging.Nop(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("module", "tracking")
	return s
}

func (s *TrackingService) clock() time.Time {
	return timex.Normalize(s.now())
}

func (s *TrackingService) fix(ctx context.Context) *syncapi.GeoPoint {
	p, err := s.location.CurrentFix(ctx, true)
	if err != nil {
		s.log.Warn(ctx, "no location fix", "error", err)
		return nil
	}
	return p
}

func (s *TrackingService) changed(ctx context.Context) {
	if s.OnChange != nil {
		s.OnChange(ctx)
	}
}

func (s *TrackingService) enqueue(ctx context.Context, tx dbx.DBTX, t syncapi.EntityType, guid string, rec any) error {
	payload, err := syncer.EncodePayload(rec, false)
	if err != nil {
		return err
	}
	_, err = s.queue.Enqueue(ctx, tx, t, guid, payload)
	return err
}

// StartJob opens a time entry for the worker. A worker has at most one
// open entry.
func (s *TrackingService) StartJob(ctx context.Context, workerID, jobID int64, notes string) (*models.TimeEntry, error) {
	now := s.clock()
	e := &models.TimeEntry{
		TimeEntry: syncapi.TimeEntry{
			GUID:          uuid.NewString(),
			WorkerID:      workerID,
			JobID:         jobID,
			StartTime:     now,
			StartLocation: s.fix(ctx),
			Notes:         notes,
			UpdatedAt:     now,
		},
		CreatedAt: now,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := checkJob(ctx, tx, jobID); err != nil {
			return err
		}
		repo := timeentries.NewSQLiteRepository(tx)
		if _, err := repo.GetActive(ctx, workerID); err == nil {
			return ErrActiveEntryExists
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if err := repo.Insert(ctx, e); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, syncapi.TimeEntryType, e.GUID, e.TimeEntry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "job started", "guid", e.GUID, "worker", workerID, "job", jobID)
	s.changed(ctx)
	return e, nil
}

// checkJob accepts any job while no jobs were pulled yet, so a device
// can work before its first pull.
func checkJob(ctx context.Context, tx dbx.DBTX, jobID int64) error {
	ref := reference.NewSQLiteRepository(tx)
	_, err := ref.GetJob(ctx, jobID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	jobs, err := ref.ListJobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownJob, jobID)
}

// EndJob closes the worker's open entry. An open break is closed at the
// same instant. Hours are computed from the entry window minus unpaid
// breaks.
func (s *TrackingService) EndJob(ctx context.Context, workerID int64, notes string) (*models.TimeEntry, error) {
	now := s.clock()
	loc := s.fix(ctx)

	var e *models.TimeEntry
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := timeentries.NewSQLiteRepository(tx)
		var err error
		e, err = repo.GetActive(ctx, workerID)
		if errors.Is(err, common.ErrorNotFound) {
			return ErrNoActiveEntry
		}
		if err != nil {
			return err
		}
		if !now.After(e.StartTime) {
			return fmt.Errorf("%w: job cannot end at its start time", common.ErrValidation)
		}

		if _, err := s.closeBreak(ctx, tx, e.GUID, now); err != nil && !errors.Is(err, ErrNoActiveBreak) {
			return err
		}

		unpaid, err := unpaidBreaks(ctx, tx, e.GUID)
		if err != nil {
			return err
		}
		ref := reference.NewSQLiteRepository(tx)
		v, ok, err := ref.GetSetting(ctx, syncapi.SettingOvertimeThresholdHours)
		if err != nil {
			return err
		}
		threshold := parseThreshold(v, ok)

		e.EndTime = &now
		e.EndLocation = loc
		if notes != "" {
			e.Notes = notes
		}
		e.RegularHours, e.OvertimeHours = ComputeHours(e.StartTime, now, unpaid, threshold)
		e.UpdatedAt = now
		if err := e.Validate(); err != nil {
			return err
		}
		if err := repo.Update(ctx, e); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, syncapi.TimeEntryType, e.GUID, e.TimeEntry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "job ended", "guid", e.GUID, "regular", e.RegularHours, "overtime", e.OvertimeHours)
	s.changed(ctx)
	return e, nil
}

func unpaidBreaks(ctx context.Context, tx dbx.DBTX, entryGUID string) (time.Duration, error) {
	bs, err := breaks.NewSQLiteRepository(tx).ListByEntry(ctx, entryGUID)
	if err != nil {
		return 0, err
	}
	ref := reference.NewSQLiteRepository(tx)
	var total time.Duration
	for _, b := range bs {
		if b.EndTime == nil {
			continue
		}
		bt, err := ref.GetBreakType(ctx, b.BreakTypeID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return 0, err
		}
		if bt != nil && bt.Paid {
			continue
		}
		total += b.EndTime.Sub(b.StartTime)
	}
	return total, nil
}

// StartBreak opens a break inside the worker's open entry.
func (s *TrackingService) StartBreak(ctx context.Context, workerID, breakTypeID int64) (*models.BreakEntry, error) {
	now := s.clock()

	var b *models.BreakEntry
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		e, err := timeentries.NewSQLiteRepository(tx).GetActive(ctx, workerID)
		if errors.Is(err, common.ErrorNotFound) {
			return ErrNoActiveEntry
		}
		if err != nil {
			return err
		}
		if err := checkBreakType(ctx, tx, breakTypeID); err != nil {
			return err
		}
		repo := breaks.NewSQLiteRepository(tx)
		if _, err := repo.GetActive(ctx, e.GUID); err == nil {
			return ErrActiveBreakExists
		} else if !errors.Is(err, common.ErrorNotFound) {
			return err
		}

		b = &models.BreakEntry{BreakEntry: syncapi.BreakEntry{
			GUID:          uuid.NewString(),
			TimeEntryGUID: e.GUID,
			BreakTypeID:   breakTypeID,
			StartTime:     now,
			UpdatedAt:     now,
		}}
		if err := b.Validate(); err != nil {
			return err
		}
		if !b.Within(e.TimeEntry) {
			return fmt.Errorf("%w: break starts before its job", common.ErrValidation)
		}
		if err := repo.Insert(ctx, b); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, syncapi.BreakEntryType, b.GUID, b.BreakEntry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "break started", "guid", b.GUID, "entry", b.TimeEntryGUID)
	s.changed(ctx)
	return b, nil
}

func checkBreakType(ctx context.Context, tx dbx.DBTX, id int64) error {
	ref := reference.NewSQLiteRepository(tx)
	if _, err := ref.GetBreakType(ctx, id); err == nil {
		return nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return err
	}
	types, err := ref.ListBreakTypes(ctx)
	if err != nil {
		return err
	}
	if len(types) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownBreakType, id)
}

// EndBreak closes the worker's open break.
func (s *TrackingService) EndBreak(ctx context.Context, workerID int64) (*models.BreakEntry, error) {
	now := s.clock()

	var b *models.BreakEntry
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		e, err := timeentries.NewSQLiteRepository(tx).GetActive(ctx, workerID)
		if errors.Is(err, common.ErrorNotFound) {
			return ErrNoActiveEntry
		}
		if err != nil {
			return err
		}
		b, err = s.closeBreak(ctx, tx, e.GUID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "break ended", "guid", b.GUID, "minutes", b.DurationMinutes)
	s.changed(ctx)
	return b, nil
}

func (s *TrackingService) closeBreak(ctx context.Context, tx dbx.DBTX, entryGUID string, at time.Time) (*models.BreakEntry, error) {
	repo := breaks.NewSQLiteRepository(tx)
	b, err := repo.GetActive(ctx, entryGUID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, ErrNoActiveBreak
	}
	if err != nil {
		return nil, err
	}
	if !at.After(b.StartTime) {
		return nil, fmt.Errorf("%w: break cannot end at its start time", common.ErrValidation)
	}
	b.EndTime = &at
	b.DurationMinutes = int(math.Round(at.Sub(b.StartTime).Minutes()))
	b.UpdatedAt = at
	if err := repo.Update(ctx, b); err != nil {
		return nil, err
	}
	return b, s.enqueue(ctx, tx, syncapi.BreakEntryType, b.GUID, b.BreakEntry)
}

// CapturePhoto stores a photo taken by the worker and links it to the open
// entry, if any. The binary stays on disk until the photo is pushed.
func (s *TrackingService) CapturePhoto(ctx context.Context, workerID int64, c providers.PhotoCapture) (*models.Photo, error) {
	shot, err := c.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	now := s.clock()
	loc := shot.Location
	if loc == nil {
		loc = s.fix(ctx)
	}

	p := &models.Photo{
		Photo: syncapi.Photo{
			GUID:                uuid.NewString(),
			FileName:            shot.FileName,
			MimeType:            shot.MimeType,
			SizeBytes:           shot.SizeBytes,
			CompressedSizeBytes: shot.CompressedSizeBytes,
			Width:               shot.Width,
			Height:              shot.Height,
			CapturedAt:          now,
			Location:            loc,
			UpdatedAt:           now,
		},
		URI: shot.URI,
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		e, err := timeentries.NewSQLiteRepository(tx).GetActive(ctx, workerID)
		switch {
		case err == nil:
			p.TimeEntryGUID = &e.GUID
		case !errors.Is(err, common.ErrorNotFound):
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if err := photos.NewSQLiteRepository(tx).Insert(ctx, p); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, syncapi.PhotoType, p.GUID, p.Photo)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "photo captured", "guid", p.GUID, "bytes", p.SizeBytes)
	s.changed(ctx)
	return p, nil
}

// Active returns the worker's open entry and open break. Either may be nil.
func (s *TrackingService) Active(ctx context.Context, workerID int64) (*models.TimeEntry, *models.BreakEntry, error) {
	e, err := timeentries.NewSQLiteRepository(s.db).GetActive(ctx, workerID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	b, err := breaks.NewSQLiteRepository(s.db).GetActive(ctx, e.GUID)
	if errors.Is(err, common.ErrorNotFound) {
		return e, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return e, b, nil
}

// History returns the worker's latest entries, newest first.
func (s *TrackingService) History(ctx context.Context, workerID int64, limit int) ([]*models.TimeEntry, error) {
	return timeentries.NewSQLiteRepository(s.db).ListByWorker(ctx, workerID, limit)
}

// Jobs lists the active jobs cached on the device.
func (s *TrackingService) Jobs(ctx context.Context) ([]syncapi.Job, error) {
	return reference.NewSQLiteRepository(s.db).ListJobs(ctx)
}

func (s *TrackingService) BreakTypes(ctx context.Context) ([]syncapi.BreakType, error) {
	return reference.NewSQLiteRepository(s.db).ListBreakTypes(ctx)
}
