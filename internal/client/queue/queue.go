// Package queue is the device's durable outbox. Every local change to a
// time entry, break or photo is recorded here until the server
// acknowledges it.
//
// Items are delivered oldest first. Repeated edits of the same record
// coalesce into one pending item. Items that keep failing, or fail in a way
// no retry can fix, move to a visible failed list instead of blocking the
// queue.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/client/models"
	queuerepo "github.com/dmitrijs2005/crewclock/internal/client/repositories/queue"
	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/logging"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

// Outcome describes what RecordFailure did with an item.
type Outcome struct {
	Class   Class
	Retries int
	Evicted bool
	// Superseded is true when a newer edit replaced the item while it was
	// in flight. The failure is dropped; the new payload gets a full retry
	// budget.
	Superseded bool
}

type Service struct {
	db         *sql.DB
	classifier RetryClassifier
	policy     EvictionPolicy
	log        logging.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithClassifier(c RetryClassifier) Option { return func(s *Service) { s.classifier = c } }

func WithEvictionPolicy(p EvictionPolicy) Option { return func(s *Service) { s.policy = p } }

func WithLogger(l logging.Logger) Option { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		db:         db,
		classifier: DefaultClassifier,
		policy:     DefaultMaxAttempts,
		log:        logging.Nop(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("module", "queue")
	return s
}

// Enqueue records payload as the pending version of an entity. tx is the
// transaction that wrote the record itself, so the record and its queue
// entry commit together. A nil tx runs the enqueue in its own transaction.
func (s *Service) Enqueue(ctx context.Context, tx dbx.DBTX, t syncapi.EntityType, guid string, payload []byte) (*models.QueueItem, error) {
	if guid == "" {
		return nil, fmt.Errorf("%w: empty entity guid", common.ErrValidation)
	}
	if _, err := syncapi.ParseEntityType(string(t)); err != nil {
		return nil, err
	}
	if tx != nil {
		return queuerepo.NewSQLiteRepository(tx).Upsert(ctx, t, guid, payload, s.now())
	}
	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.QueueItem, error) {
		return queuerepo.NewSQLiteRepository(tx).Upsert(ctx, t, guid, payload, s.now())
	})
}

// DequeueBatch returns up to maxItems pending items, oldest first. Items are
// not removed; call Remove after the server acknowledged them.
func (s *Service) DequeueBatch(ctx context.Context, maxItems int) ([]*models.QueueItem, error) {
	if maxItems <= 0 {
		return nil, nil
	}
	return queuerepo.NewSQLiteRepository(s.db).ListPending(ctx, maxItems)
}

// RecordFailure books a failed delivery of item. Permanent failures are
// evicted immediately; transient ones are evicted when the eviction policy
// says so. Evicted items move to the failed list.
func (s *Service) RecordFailure(ctx context.Context, item *models.QueueItem, cause error) (Outcome, error) {
	class := s.classifier.Classify(cause)
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	out := Outcome{Class: class}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := queuerepo.NewSQLiteRepository(tx)
		now := s.now()

		retries, ok, err := repo.IncrementRetry(ctx, item.ID, item.Revision, msg, now)
		if err != nil {
			return err
		}
		if !ok {
			out.Superseded = true
			return nil
		}
		out.Retries = retries

		if class == Transient && !s.policy.ShouldEvict(retries) {
			return nil
		}
		evicted, err := repo.MarkFailed(ctx, item.ID, item.Revision, msg, now)
		if err != nil {
			return err
		}
		out.Evicted = evicted
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}

	if out.Evicted {
		s.log.Warn(ctx, "queue item evicted", "id", item.ID, "type", item.Type, "guid", item.EntityGUID,
			"retries", out.Retries, "class", class.String(), "error", msg)
	}
	return out, nil
}

// Remove deletes an acknowledged item. It returns false when the item was
// replaced by a newer edit after it was dequeued; the newer version stays
// queued. tx lets the caller couple removal with the record update.
func (s *Service) Remove(ctx context.Context, tx dbx.DBTX, item *models.QueueItem) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	repo := queuerepo.NewSQLiteRepository(tx)
	ok, err := repo.DeleteIfRevision(ctx, item.ID, item.Revision)
	if err != nil || !ok {
		return ok, err
	}
	// The record reached the server, older dismissals no longer matter.
	if err := repo.DeleteDismissed(ctx, item.Type, item.EntityGUID); err != nil {
		return false, err
	}
	return true, nil
}

// Failed lists evicted items for the user to inspect.
func (s *Service) Failed(ctx context.Context) ([]*models.QueueItem, error) {
	return queuerepo.NewSQLiteRepository(s.db).ListFailed(ctx)
}

// Dismiss gives up on a failed item. The row stays as dismissed so that
// reconciliation does not queue the record again; a later edit of the
// record queues a fresh item as usual.
func (s *Service) Dismiss(ctx context.Context, id int64) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := queuerepo.NewSQLiteRepository(tx)
		item, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if item.Status != models.QueueFailed {
			return fmt.Errorf("%w: item %d is not failed", common.ErrValidation, id)
		}
		return repo.MarkDismissed(ctx, id, s.now())
	})
}

// Requeue gives a failed item a fresh retry budget. If the record was edited
// after the failure a newer pending item already exists; the failed one is
// then simply dropped.
func (s *Service) Requeue(ctx context.Context, id int64) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := queuerepo.NewSQLiteRepository(tx)
		item, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if item.Status != models.QueueFailed {
			return fmt.Errorf("%w: item %d is not failed", common.ErrValidation, id)
		}
		pending, err := repo.HasPending(ctx, item.Type, item.EntityGUID)
		if err != nil {
			return err
		}
		if pending {
			return repo.Delete(ctx, id)
		}
		return repo.SetPending(ctx, id, s.now())
	})
}

// ReplacePayload swaps the payload of a pending item, used when the item
// must be resent with different content (for example forced after a
// conflict).
func (s *Service) ReplacePayload(ctx context.Context, tx dbx.DBTX, id int64, payload []byte) error {
	if tx == nil {
		tx = s.db
	}
	err := queuerepo.NewSQLiteRepository(tx).ReplacePayload(ctx, id, payload, s.now())
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("queue item %d: %w", id, err)
	}
	return err
}

// DropEntity removes every queue row of an entity. Used when an entity
// leaves the sync flow, for example into manual review.
func (s *Service) DropEntity(ctx context.Context, tx dbx.DBTX, t syncapi.EntityType, guid string) error {
	if tx == nil {
		tx = s.db
	}
	return queuerepo.NewSQLiteRepository(tx).DeleteByEntity(ctx, t, guid)
}

func (s *Service) Stats(ctx context.Context) (*models.QueueStats, error) {
	return queuerepo.NewSQLiteRepository(s.db).Stats(ctx)
}
