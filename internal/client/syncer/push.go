package syncer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/crewclock/internal/client/client"
	"github.com/dmitrijs2005/crewclock/internal/client/models"
	"github.com/dmitrijs2005/crewclock/internal/client/queue"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/conflicts"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/photos"
	"github.com/dmitrijs2005/crewclock/internal/client/repositories/syncstate"
	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/conflict"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

type itemKey struct {
	t    syncapi.EntityType
	guid string
}

type outgoing struct {
	item   *models.QueueItem
	record any
}

func fatal(err error) bool {
	return errors.Is(err, client.ErrUnauthorized) || errors.Is(err, client.ErrLicense)
}

// push sends every item pending at the start of the cycle, in FIFO order
// and in batches. Each item is sent at most once per cycle.
func (e *Engine) push(ctx context.Context, res *Result) error {
	meta := metadata.NewSQLiteRepository(e.db)
	deviceID, err := meta.GetString(ctx, metadata.KeyDeviceID)
	if err != nil {
		return err
	}
	lastSync, err := meta.GetTime(ctx, metadata.KeyLastSync)
	if err != nil {
		return err
	}

	items, err := e.queue.DequeueBatch(ctx, e.cfg.BatchSize*e.cfg.MaxBatches)
	if err != nil {
		return err
	}

	for start := 0; start < len(items); start += e.cfg.BatchSize {
		end := min(start+e.cfg.BatchSize, len(items))
		if err := e.pushBatch(ctx, res, items[start:end], deviceID, lastSync); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) pushBatch(ctx context.Context, res *Result, items []*models.QueueItem, deviceID string, lastSync *time.Time) error {
	req := &syncapi.PushRequest{DeviceID: deviceID, LastSyncAt: lastSync}
	var order []itemKey
	pending := make(map[itemKey]outgoing, len(items))

	for _, it := range items {
		res.Processed++
		rec, err := e.prepare(ctx, it)
		if err != nil {
			e.failItem(ctx, res, it, err)
			continue
		}
		switch r := rec.(type) {
		case syncapi.TimeEntry:
			req.TimeEntries = append(req.TimeEntries, r)
		case syncapi.BreakEntry:
			req.BreakEntries = append(req.BreakEntries, r)
		case syncapi.Photo:
			req.Photos = append(req.Photos, r)
		}
		k := itemKey{it.Type, it.EntityGUID}
		order = append(order, k)
		pending[k] = outgoing{item: it, record: rec}
	}
	if req.Len() == 0 {
		return nil
	}

	resp, err := e.api.Push(ctx, req)
	if err != nil {
		if fatal(err) {
			return err
		}
		for _, k := range order {
			e.failItem(ctx, res, pending[k].item, err)
		}
		return fmt.Errorf("push: %w", err)
	}

	acks := make(map[itemKey]syncapi.Ack, len(resp.Acknowledged))
	for _, a := range resp.Acknowledged {
		acks[itemKey{a.EntityType, a.EntityGUID}] = a
	}
	conflictsByKey := make(map[itemKey]syncapi.Conflict, len(resp.Conflicts))
	for _, c := range resp.Conflicts {
		conflictsByKey[itemKey{c.EntityType, c.EntityGUID}] = c
	}
	errs := make(map[itemKey]syncapi.ItemError, len(resp.Errors))
	for _, ie := range resp.Errors {
		errs[itemKey{ie.EntityType, ie.EntityGUID}] = ie
	}

	for _, k := range order {
		o := pending[k]
		if a, ok := acks[k]; ok {
			if err := e.acknowledge(ctx, o, a); err != nil {
				e.log.Error(ctx, "apply ack", "guid", k.guid, "error", err)
				continue
			}
			res.Succeeded++
			continue
		}
		if c, ok := conflictsByKey[k]; ok {
			res.Conflicts++
			if err := e.handleConflict(ctx, res, o, c); err != nil {
				e.log.Error(ctx, "apply conflict decision", "guid", k.guid, "error", err)
			}
			continue
		}
		if ie, ok := errs[k]; ok {
			e.failItem(ctx, res, o.item, itemError(ie))
			continue
		}
		e.failItem(ctx, res, o.item, errors.New("no verdict from server"))
	}
	return nil
}

func itemError(ie syncapi.ItemError) error {
	if ie.Code.Permanent() {
		return queue.MarkPermanent(fmt.Errorf("%w: %s", common.ErrValidation, ie.Error))
	}
	return fmt.Errorf("%s: %s", ie.Code, ie.Error)
}

// prepare decodes a queued payload and stamps it for sending: the base hash
// from the record store and, for photos, the binary.
func (e *Engine) prepare(ctx context.Context, it *models.QueueItem) (any, error) {
	rec, err := decodePayload(it.Type, it.Payload)
	if err != nil {
		return nil, queue.MarkPermanent(fmt.Errorf("decode payload: %w", err))
	}
	table, err := syncstate.ForType(e.db, it.Type)
	if err != nil {
		return nil, queue.MarkPermanent(err)
	}
	base, err := table.SyncedHash(ctx, it.EntityGUID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, queue.MarkPermanent(errors.New("local record missing"))
	}
	if err != nil {
		return nil, err
	}

	switch r := rec.(type) {
	case syncapi.TimeEntry:
		r.BaseHash = base
		return r, nil
	case syncapi.BreakEntry:
		r.BaseHash = base
		return r, nil
	case syncapi.Photo:
		r.BaseHash = base
		p, err := photos.NewSQLiteRepository(e.db).Get(ctx, it.EntityGUID)
		if err != nil {
			return nil, err
		}
		data, err := e.blobs.ReadBlob(ctx, p.URI)
		if err != nil {
			return nil, queue.MarkPermanent(fmt.Errorf("read photo %s: %w", p.URI, err))
		}
		r.Data = base64.StdEncoding.EncodeToString(data)
		return r, nil
	}
	return nil, queue.MarkPermanent(fmt.Errorf("unexpected record %T", rec))
}

func (e *Engine) failItem(ctx context.Context, res *Result, it *models.QueueItem, cause error) {
	out, err := e.queue.RecordFailure(ctx, it, cause)
	if err != nil {
		e.log.Error(ctx, "record failure", "id", it.ID, "error", err)
	}
	res.fail(it.Type, it.EntityGUID, cause, out)
}

// acknowledge removes the item and records the server's hash. The record is
// marked synced only when no newer edit was queued meanwhile.
func (e *Engine) acknowledge(ctx context.Context, o outgoing, a syncapi.Ack) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		removed, err := e.queue.Remove(ctx, tx, o.item)
		if err != nil {
			return err
		}
		table, err := syncstate.ForType(tx, o.item.Type)
		if err != nil {
			return err
		}
		err = table.MarkAcknowledged(ctx, o.item.EntityGUID, a.Hash, a.ServerID, removed)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	})
}

type verdict struct {
	winner conflict.Winner
	review bool
	reason string
	server any
}

func resolveAs[T conflict.Record](local T, raw json.RawMessage, s conflict.Strategy) (verdict, error) {
	if len(raw) == 0 {
		return verdict{review: true, reason: "server copy not provided"}, nil
	}
	var server T
	if err := json.Unmarshal(raw, &server); err != nil {
		return verdict{}, err
	}
	d := conflict.Resolve(local, server, s)
	return verdict{winner: d.Winner, review: d.NeedsReview, reason: d.Reason, server: server}, nil
}

func decide(local any, raw json.RawMessage, s conflict.Strategy) (verdict, error) {
	switch l := local.(type) {
	case syncapi.TimeEntry:
		return resolveAs(l, raw, s)
	case syncapi.BreakEntry:
		return resolveAs(l, raw, s)
	case syncapi.Photo:
		return resolveAs(l, raw, s)
	default:
		return verdict{}, fmt.Errorf("unsupported record %T", local)
	}
}

func (e *Engine) handleConflict(ctx context.Context, res *Result, o outgoing, c syncapi.Conflict) error {
	if c.Kind == conflict.MissingReference {
		e.failItem(ctx, res, o.item, errors.New(c.Reason))
		return nil
	}

	strategy := conflict.StrategyFor(c.Kind, e.cfg.Strategy)
	v, err := decide(o.record, c.ServerRecord, strategy)
	if err != nil {
		v = verdict{review: true, reason: fmt.Sprintf("unreadable server copy: %v", err)}
	}
	e.log.Info(ctx, "conflict", "type", o.item.Type, "guid", o.item.EntityGUID, "kind", c.Kind,
		"strategy", strategy, "winner", v.winner.String(), "review", v.review, "reason", v.reason)

	switch {
	case v.review:
		return e.toReview(ctx, o, c, v.reason)
	case v.winner == conflict.KeepLocal:
		return e.keepLocal(ctx, o, c)
	default:
		return e.keepServer(ctx, o, c, v.server)
	}
}

// toReview takes the entity out of the retry queue and lists it for a
// person to decide.
func (e *Engine) toReview(ctx context.Context, o outgoing, c syncapi.Conflict, reason string) error {
	if c.Reason != "" {
		reason = c.Reason + ": " + reason
	}
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		local := o.item.Payload
		if rec, err := LoadRecord(ctx, tx, o.item.Type, o.item.EntityGUID); err == nil {
			if p, err := EncodePayload(rec, false); err == nil {
				local = p
			}
		}
		if err := e.queue.DropEntity(ctx, tx, o.item.Type, o.item.EntityGUID); err != nil {
			return err
		}
		table, err := syncstate.ForType(tx, o.item.Type)
		if err != nil {
			return err
		}
		if err := table.MarkConflict(ctx, o.item.EntityGUID, reason); err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		return conflicts.NewSQLiteRepository(tx).Upsert(ctx, &models.Conflict{
			GUID:          uuid.NewString(),
			EntityType:    o.item.Type,
			EntityGUID:    o.item.EntityGUID,
			Kind:          c.Kind,
			LocalPayload:  local,
			ServerPayload: c.ServerRecord,
			Reason:        reason,
			DetectedAt:    e.now(),
		})
	})
}

// keepLocal resends the device's version with force set. If a newer edit
// is already queued, that edit is based on the server's version instead.
func (e *Engine) keepLocal(ctx context.Context, o outgoing, c syncapi.Conflict) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		table, err := syncstate.ForType(tx, o.item.Type)
		if err != nil {
			return err
		}
		removed, err := e.queue.Remove(ctx, tx, o.item)
		if err != nil {
			return err
		}
		if !removed {
			return table.SetSyncedHash(ctx, o.item.EntityGUID, c.ServerHash)
		}
		rec, err := LoadRecord(ctx, tx, o.item.Type, o.item.EntityGUID)
		if err != nil {
			return err
		}
		payload, err := EncodePayload(rec, true)
		if err != nil {
			return err
		}
		_, err = e.queue.Enqueue(ctx, tx, o.item.Type, o.item.EntityGUID, payload)
		return err
	})
}

// keepServer overwrites the local record with the server's copy, unless a
// newer local edit is queued, in which case that edit goes out next.
func (e *Engine) keepServer(ctx context.Context, o outgoing, c syncapi.Conflict, server any) error {
	return dbx.WithTx(ctx, e.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		removed, err := e.queue.Remove(ctx, tx, o.item)
		if err != nil {
			return err
		}
		if removed {
			return applyServer(ctx, tx, server, c.ServerHash)
		}
		table, err := syncstate.ForType(tx, o.item.Type)
		if err != nil {
			return err
		}
		return table.SetSyncedHash(ctx, o.item.EntityGUID, c.ServerHash)
	})
}
