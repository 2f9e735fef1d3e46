package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/crewclock/internal/server/storage"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// PhotoService hands out download links for stored photos.
type PhotoService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.PhotoStore
	validity    time.Duration
	now         func() time.Time
}

func NewPhotoService(db *sql.DB, m repomanager.RepositoryManager, store storage.PhotoStore, validity time.Duration) *PhotoService {
	return &PhotoService{db: db, repomanager: m, store: store, validity: validity, now: time.Now}
}

// DownloadURL presigns a GET for the photo. Photos of other workers are
// reported as not found.
func (s *PhotoService) DownloadURL(ctx context.Context, workerID int64, guid string) (*syncapi.PhotoURLResponse, error) {
	p, err := s.repomanager.Photos(s.db).Get(ctx, guid)
	if err != nil {
		return nil, err
	}
	if p.WorkerID != workerID {
		return nil, common.ErrorNotFound
	}

	url, err := s.store.PresignGet(ctx, p.StorageKey, s.validity)
	if err != nil {
		return nil, err
	}
	return &syncapi.PhotoURLResponse{URL: url, ExpiresAt: s.now().Add(s.validity).UTC()}, nil
}
