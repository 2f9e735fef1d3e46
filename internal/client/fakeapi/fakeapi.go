// Package fakeapi is an in-memory stand-in for the CrewClock server used by
// client tests. It follows the server's push rules: idempotency by GUID,
// update races detected through the base hash, overlap detection and
// missing parent references.
package fakeapi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/client/client"
	"github.com/dmitrijs2005/crewclock/internal/conflict"
	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

type account struct {
	id       int64
	salt     []byte
	verifier []byte
}

type API struct {
	mu sync.Mutex

	Entries map[string]syncapi.TimeEntry
	Breaks  map[string]syncapi.BreakEntry
	Photos  map[string]syncapi.Photo

	// PushErr, when set, fails every push as a transport error would.
	PushErr error
	// ItemErrors forces a per-item error for the given GUIDs.
	ItemErrors map[string]syncapi.ItemError
	// PullResponse is returned by Pull.
	PullResponse *syncapi.PullResponse
	// License is returned on login.
	License json.RawMessage
	// Hook runs at the start of every push, before it is applied.
	Hook func(req *syncapi.PushRequest)

	Pushes    []*syncapi.PushRequest
	PullSince []*time.Time

	accounts map[string]*account
	nextID   int64
	tokens   syncapi.TokenPair
	down     bool
}

var _ client.Client = (*API)(nil)

func New() *API {
	return &API{
		Entries:    map[string]syncapi.TimeEntry{},
		Breaks:     map[string]syncapi.BreakEntry{},
		Photos:     map[string]syncapi.Photo{},
		ItemErrors: map[string]syncapi.ItemError{},
		accounts:   map[string]*account{},
	}
}

// SetDown makes every call fail with client.ErrUnavailable until reset.
func (a *API) SetDown(down bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down = down
}

func (a *API) id() int64 {
	a.nextID++
	return a.nextID
}

func (a *API) GetSalt(_ context.Context, username string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return nil, client.ErrUnavailable
	}
	acc, ok := a.accounts[username]
	if !ok {
		return nil, client.ErrNotFound
	}
	return acc.salt, nil
}

func (a *API) Register(_ context.Context, username, _ string, salt, verifier []byte) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return 0, client.ErrUnavailable
	}
	if _, ok := a.accounts[username]; ok {
		return 0, client.ErrValidation
	}
	acc := &account{id: a.id(), salt: salt, verifier: verifier}
	a.accounts[username] = acc
	return acc.id, nil
}

func (a *API) Login(_ context.Context, username string, verifier []byte, _ string) (*syncapi.LoginResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return nil, client.ErrUnavailable
	}
	acc, ok := a.accounts[username]
	if !ok || string(acc.verifier) != string(verifier) {
		return nil, client.ErrUnauthorized
	}
	return &syncapi.LoginResponse{
		AccessToken:  "access-" + username,
		RefreshToken: "refresh-" + username,
		WorkerID:     acc.id,
		License:      a.License,
	}, nil
}

func (a *API) Pull(_ context.Context, since *time.Time) (*syncapi.PullResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.down {
		return nil, client.ErrUnavailable
	}
	a.PullSince = append(a.PullSince, since)
	if a.PullResponse == nil {
		return &syncapi.PullResponse{SystemSettings: map[string]string{}}, nil
	}
	return a.PullResponse, nil
}

func (a *API) LicenseStatus(context.Context) (*license.Status, error) {
	return &license.Status{IsValid: true}, nil
}

func (a *API) PhotoURL(_ context.Context, guid string) (*syncapi.PhotoURLResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.Photos[guid]; !ok {
		return nil, client.ErrNotFound
	}
	return &syncapi.PhotoURLResponse{URL: "https://photos.example/" + guid}, nil
}

func (a *API) SetTokens(t syncapi.TokenPair) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens = t
}

func (a *API) Tokens() syncapi.TokenPair {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tokens
}

func raw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func (a *API) Push(_ context.Context, req *syncapi.PushRequest) (*syncapi.PushResponse, error) {
	if a.Hook != nil {
		a.Hook(req)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.down {
		return nil, client.ErrUnavailable
	}
	if a.PushErr != nil {
		return nil, a.PushErr
	}
	a.Pushes = append(a.Pushes, req)
	resp := syncapi.NewPushResponse()

	fail := func(t syncapi.EntityType, guid string) bool {
		ie, ok := a.ItemErrors[guid]
		if !ok {
			return false
		}
		ie.EntityType, ie.EntityGUID = t, guid
		resp.Errors = append(resp.Errors, ie)
		resp.Failed++
		return true
	}
	ack := func(t syncapi.EntityType, guid string, id *int64, hash string) {
		resp.Acknowledged = append(resp.Acknowledged, syncapi.Ack{EntityType: t, EntityGUID: guid, ServerID: *id, Hash: hash})
		resp.Succeeded++
	}
	race := func(t syncapi.EntityType, guid string, server any, hash string) {
		resp.Conflicts = append(resp.Conflicts, syncapi.Conflict{
			EntityType: t, EntityGUID: guid, Kind: conflict.UpdateRace,
			Reason: "record changed on the server", ServerRecord: raw(server), ServerHash: hash,
		})
	}

	for _, e := range req.TimeEntries {
		resp.Processed++
		if fail(syncapi.TimeEntryType, e.GUID) {
			continue
		}
		h := e.ContentHash()
		stored, exists := a.Entries[e.GUID]
		if exists && stored.ContentHash() == h {
			ack(syncapi.TimeEntryType, e.GUID, stored.ServerID, h)
			continue
		}
		if exists && !e.Force && e.BaseHash != stored.ContentHash() {
			race(syncapi.TimeEntryType, e.GUID, stored, stored.ContentHash())
			continue
		}
		if !e.Force {
			if other, ok := a.overlapping(e); ok {
				resp.Conflicts = append(resp.Conflicts, syncapi.Conflict{
					EntityType: syncapi.TimeEntryType, EntityGUID: e.GUID, Kind: conflict.Overlap,
					Reason: "overlaps entry " + other.GUID, ServerRecord: raw(other), ServerHash: other.ContentHash(),
				})
				continue
			}
		}
		if exists {
			e.ServerID = stored.ServerID
		} else {
			id := a.id()
			e.ServerID = &id
		}
		e.BaseHash, e.Force = "", false
		a.Entries[e.GUID] = e
		ack(syncapi.TimeEntryType, e.GUID, e.ServerID, h)
	}

	for _, b := range req.BreakEntries {
		resp.Processed++
		if fail(syncapi.BreakEntryType, b.GUID) {
			continue
		}
		if _, ok := a.Entries[b.TimeEntryGUID]; !ok {
			resp.Errors = append(resp.Errors, syncapi.ItemError{
				EntityType: syncapi.BreakEntryType, EntityGUID: b.GUID,
				Error: "time entry not found", Code: syncapi.CodeMissingReference,
			})
			resp.Failed++
			continue
		}
		h := b.ContentHash()
		stored, exists := a.Breaks[b.GUID]
		if exists && stored.ContentHash() == h {
			ack(syncapi.BreakEntryType, b.GUID, stored.ServerID, h)
			continue
		}
		if exists && !b.Force && b.BaseHash != stored.ContentHash() {
			race(syncapi.BreakEntryType, b.GUID, stored, stored.ContentHash())
			continue
		}
		if exists {
			b.ServerID = stored.ServerID
		} else {
			id := a.id()
			b.ServerID = &id
		}
		b.BaseHash, b.Force = "", false
		a.Breaks[b.GUID] = b
		ack(syncapi.BreakEntryType, b.GUID, b.ServerID, h)
	}

	for _, p := range req.Photos {
		resp.Processed++
		if fail(syncapi.PhotoType, p.GUID) {
			continue
		}
		if p.TimeEntryGUID != nil {
			if _, ok := a.Entries[*p.TimeEntryGUID]; !ok {
				resp.Errors = append(resp.Errors, syncapi.ItemError{
					EntityType: syncapi.PhotoType, EntityGUID: p.GUID,
					Error: "time entry not found", Code: syncapi.CodeMissingReference,
				})
				resp.Failed++
				continue
			}
		}
		h := p.ContentHash()
		stored, exists := a.Photos[p.GUID]
		if exists && stored.ContentHash() == h {
			ack(syncapi.PhotoType, p.GUID, stored.ServerID, h)
			continue
		}
		if exists {
			p.ServerID = stored.ServerID
		} else {
			id := a.id()
			p.ServerID = &id
		}
		p.BaseHash, p.Force = "", false
		a.Photos[p.GUID] = p
		ack(syncapi.PhotoType, p.GUID, p.ServerID, h)
	}
	return resp, nil
}

func (a *API) overlapping(e syncapi.TimeEntry) (syncapi.TimeEntry, bool) {
	for _, o := range a.Entries {
		if o.GUID != e.GUID && o.WorkerID == e.WorkerID && e.Overlaps(o) {
			return o, true
		}
	}
	return syncapi.TimeEntry{}, false
}

// Seed stores a time entry as if another device had pushed it.
func (a *API) Seed(e syncapi.TimeEntry) syncapi.TimeEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.id()
	e.ServerID = &id
	a.Entries[e.GUID] = e
	return e
}

// PushCount returns the number of pushes that reached the server.
func (a *API) PushCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Pushes)
}
