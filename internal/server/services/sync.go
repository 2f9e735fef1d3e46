package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/conflict"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/server/models"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/crewclock/internal/server/storage"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// errMissingReference marks a child pushed before its parent.
var errMissingReference = errors.New("missing reference")

// outcome is the result of applying one pushed record. Exactly one of ack
// and conflict is set when err is nil.
type outcome struct {
	ack      *syncapi.Ack
	conflict *syncapi.Conflict
}

// SyncService implements the push and pull protocol.
type SyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	photos      storage.PhotoStore
	log         logging.Logger
	now         func() time.Time
}

func NewSyncService(db *sql.DB, m repomanager.RepositoryManager, photos storage.PhotoStore, log logging.Logger) *SyncService {
	return &SyncService{db: db, repomanager: m, photos: photos, log: log, now: time.Now}
}

// Push applies every record of req in its own transaction. Time entries
// go first so that breaks and photos of the same batch find their parent.
// Per-item failures are reported in the response; Push itself only fails
// on a nil request.
func (s *SyncService) Push(ctx context.Context, workerID int64, req *syncapi.PushRequest) (*syncapi.PushResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty push request", common.ErrValidation)
	}
	resp := syncapi.NewPushResponse()

	for _, e := range req.TimeEntries {
		o, err := s.applyTimeEntry(ctx, workerID, req.DeviceID, e)
		s.record(ctx, resp, syncapi.TimeEntryType, e.GUID, o, err)
	}
	for _, b := range req.BreakEntries {
		o, err := s.applyBreak(ctx, workerID, b)
		s.record(ctx, resp, syncapi.BreakEntryType, b.GUID, o, err)
	}
	for _, p := range req.Photos {
		o, err := s.applyPhoto(ctx, workerID, p)
		s.record(ctx, resp, syncapi.PhotoType, p.GUID, o, err)
	}

	if req.DeviceID != "" {
		if err := s.repomanager.Devices(s.db).Touch(ctx, req.DeviceID, workerID, s.now(), true); err != nil {
			s.log.Warn(ctx, "record device push", "device_id", req.DeviceID, "error", err)
		}
	}

	s.log.Info(ctx, "push applied", "worker_id", workerID, "processed", resp.Processed,
		"succeeded", resp.Succeeded, "failed", resp.Failed, "conflicts", len(resp.Conflicts))
	return resp, nil
}

func (s *SyncService) record(ctx context.Context, resp *syncapi.PushResponse, t syncapi.EntityType, guid string, o outcome, err error) {
	resp.Processed++
	switch {
	case err != nil:
		code := syncapi.CodeInternal
		msg := "internal error"
		switch {
		case errors.Is(err, common.ErrValidation):
			code, msg = syncapi.CodeValidation, err.Error()
		case errors.Is(err, errMissingReference):
			code, msg = syncapi.CodeMissingReference, err.Error()
		default:
			s.log.Error(ctx, "apply pushed record", "entity_type", t, "guid", guid, "error", err)
		}
		resp.Failed++
		resp.Errors = append(resp.Errors, syncapi.ItemError{EntityType: t, EntityGUID: guid, Error: msg, Code: code})
	case o.conflict != nil:
		o.conflict.EntityType, o.conflict.EntityGUID = t, guid
		resp.Conflicts = append(resp.Conflicts, *o.conflict)
	default:
		o.ack.EntityType, o.ack.EntityGUID = t, guid
		resp.Succeeded++
		resp.Acknowledged = append(resp.Acknowledged, *o.ack)
	}
}

func ackOf(id int64, hash string) outcome {
	return outcome{ack: &syncapi.Ack{ServerID: id, Hash: hash}}
}

func conflictOf(kind conflict.Kind, reason string, server any, hash string) (outcome, error) {
	raw, err := json.Marshal(server)
	if err != nil {
		return outcome{}, err
	}
	return outcome{conflict: &syncapi.Conflict{Kind: kind, Reason: reason, ServerRecord: raw, ServerHash: hash}}, nil
}

func (s *SyncService) applyTimeEntry(ctx context.Context, workerID int64, deviceID string, e syncapi.TimeEntry) (outcome, error) {
	if e.WorkerID != workerID {
		return outcome{}, fmt.Errorf("%w: workerId does not match the authenticated worker", common.ErrValidation)
	}
	if err := e.Validate(); err != nil {
		return outcome{}, err
	}
	e = e.Normalized()
	hash := e.ContentHash()

	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (outcome, error) {
		ok, err := s.repomanager.Reference(tx).JobExists(ctx, e.JobID)
		if err != nil {
			return outcome{}, err
		}
		if !ok {
			return outcome{}, fmt.Errorf("%w: job %d does not exist", common.ErrValidation, e.JobID)
		}

		repo := s.repomanager.TimeEntries(tx)
		stored, err := repo.GetForUpdate(ctx, e.GUID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return outcome{}, err
		}
		if stored != nil {
			if stored.WorkerID != workerID {
				return outcome{}, fmt.Errorf("%w: time entry belongs to another worker", common.ErrValidation)
			}
			if stored.Hash == hash {
				return ackOf(*stored.ServerID, hash), nil
			}
			if !e.Force && e.BaseHash != stored.Hash {
				return conflictOf(conflict.UpdateRace, "record changed on the server", stored.TimeEntry, stored.Hash)
			}
		}

		if !e.Force {
			other, err := repo.FindOverlapping(ctx, workerID, e.GUID, e.StartTime, e.EndTime)
			switch {
			case err == nil:
				return conflictOf(conflict.Overlap, "overlaps entry "+other.GUID, other.TimeEntry, other.Hash)
			case !errors.Is(err, common.ErrorNotFound):
				return outcome{}, err
			}
		}

		e.BaseHash, e.Force, e.ServerID = "", false, nil
		id, err := repo.Upsert(ctx, &models.TimeEntry{TimeEntry: e, Hash: hash, DeviceID: deviceID})
		if err != nil {
			return outcome{}, err
		}
		return ackOf(id, hash), nil
	})
}

func (s *SyncService) applyBreak(ctx context.Context, workerID int64, b syncapi.BreakEntry) (outcome, error) {
	if err := b.Validate(); err != nil {
		return outcome{}, err
	}
	b = b.Normalized()
	hash := b.ContentHash()

	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (outcome, error) {
		parent, err := s.repomanager.TimeEntries(tx).Get(ctx, b.TimeEntryGUID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return outcome{}, fmt.Errorf("%w: time entry %s not found", errMissingReference, b.TimeEntryGUID)
			}
			return outcome{}, err
		}
		if parent.WorkerID != workerID {
			return outcome{}, fmt.Errorf("%w: time entry belongs to another worker", common.ErrValidation)
		}
		if !b.Within(parent.TimeEntry) {
			return outcome{}, fmt.Errorf("%w: break lies outside its time entry", common.ErrValidation)
		}
		ok, err := s.repomanager.Reference(tx).BreakTypeExists(ctx, b.BreakTypeID)
		if err != nil {
			return outcome{}, err
		}
		if !ok {
			return outcome{}, fmt.Errorf("%w: break type %d does not exist", common.ErrValidation, b.BreakTypeID)
		}

		repo := s.repomanager.Breaks(tx)
		stored, err := repo.GetForUpdate(ctx, b.GUID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return outcome{}, err
		}
		if stored != nil {
			if stored.Hash == hash {
				return ackOf(*stored.ServerID, hash), nil
			}
			if !b.Force && b.BaseHash != stored.Hash {
				return conflictOf(conflict.UpdateRace, "record changed on the server", stored.BreakEntry, stored.Hash)
			}
		}

		b.BaseHash, b.Force, b.ServerID = "", false, nil
		id, err := repo.Upsert(ctx, &models.BreakEntry{BreakEntry: b, Hash: hash})
		if err != nil {
			return outcome{}, err
		}
		return ackOf(id, hash), nil
	})
}

// applyPhoto stores the binary before the metadata row so that a row never
// points at a missing object. Re-sending an already stored photo needs no
// data.
func (s *SyncService) applyPhoto(ctx context.Context, workerID int64, p syncapi.Photo) (outcome, error) {
	if err := p.Validate(); err != nil {
		return outcome{}, err
	}
	p = p.Normalized()
	hash := p.ContentHash()

	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (outcome, error) {
		if p.TimeEntryGUID != nil {
			parent, err := s.repomanager.TimeEntries(tx).Get(ctx, *p.TimeEntryGUID)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return outcome{}, fmt.Errorf("%w: time entry %s not found", errMissingReference, *p.TimeEntryGUID)
				}
				return outcome{}, err
			}
			if parent.WorkerID != workerID {
				return outcome{}, fmt.Errorf("%w: time entry belongs to another worker", common.ErrValidation)
			}
		}

		repo := s.repomanager.Photos(tx)
		stored, err := repo.GetForUpdate(ctx, p.GUID)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return outcome{}, err
		}
		if stored != nil {
			if stored.WorkerID != workerID {
				return outcome{}, fmt.Errorf("%w: photo belongs to another worker", common.ErrValidation)
			}
			if stored.Hash == hash {
				return ackOf(*stored.ServerID, hash), nil
			}
		}

		key := storage.PhotoKey(p.GUID, p.CapturedAt)
		switch {
		case p.Data != "":
			data, err := base64.StdEncoding.DecodeString(p.Data)
			if err != nil {
				return outcome{}, fmt.Errorf("%w: photo data is not base64", common.ErrValidation)
			}
			if err := s.photos.Put(ctx, key, p.MimeType, data); err != nil {
				return outcome{}, err
			}
		case stored != nil:
			key = stored.StorageKey
		default:
			return outcome{}, fmt.Errorf("%w: photo data is required", common.ErrValidation)
		}

		p.Data, p.BaseHash, p.Force, p.ServerID = "", "", false, nil
		id, err := repo.Upsert(ctx, &models.Photo{Photo: p, WorkerID: workerID, StorageKey: key, Hash: hash})
		if err != nil {
			return outcome{}, err
		}
		return ackOf(id, hash), nil
	})
}

// Pull returns reference data changed after since. Settings and the
// license are always included.
func (s *SyncService) Pull(ctx context.Context, since time.Time) (*syncapi.PullResponse, error) {
	ref := s.repomanager.Reference(s.db)

	users, err := s.repomanager.Users(s.db).ListUpdated(ctx, since)
	if err != nil {
		return nil, err
	}
	workers := make([]syncapi.Worker, 0, len(users))
	for _, u := range users {
		workers = append(workers, syncapi.Worker{ID: u.ID, Name: u.Name, Active: u.Active, UpdatedAt: u.UpdatedAt})
	}

	jobs, err := ref.JobsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	breakTypes, err := ref.BreakTypesSince(ctx, since)
	if err != nil {
		return nil, err
	}
	settings, err := ref.Settings(ctx)
	if err != nil {
		return nil, err
	}
	last, err := ref.LastUpdate(ctx)
	if err != nil {
		return nil, err
	}
	if last.Before(since) {
		last = since
	}

	var doc json.RawMessage
	if l, err := s.repomanager.Licenses(s.db).GetActive(ctx); err == nil {
		doc = l.Document
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	return &syncapi.PullResponse{
		Workers:          workers,
		Jobs:             jobs,
		BreakTypes:       breakTypes,
		SystemSettings:   settings,
		License:          doc,
		LastServerUpdate: last,
	}, nil
}
