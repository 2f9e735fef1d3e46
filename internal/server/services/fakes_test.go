package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/dbx"
	"github.com/dmitrijs2005/crewclock/internal/server/models"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/breaks"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/devices"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/licenses"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/photos"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/reference"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/timeentries"
	"github.com/dmitrijs2005/crewclock/internal/server/repositories/users"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

var errBoom = errors.New("boom")

// txDB is an empty in-memory database; the fakes ignore the handle, it only
// provides real transactions for dbx.WithTx.
func txDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// store is an in-memory RepositoryManager. All repositories share one
// mutex and ignore the DBTX they are built with.
type store struct {
	mu sync.Mutex
	id int64

	users     map[string]*models.User
	tokens    map[string]*models.RefreshToken
	entries   map[string]*models.TimeEntry
	breaks    map[string]*models.BreakEntry
	photos    map[string]*models.Photo
	jobs      map[int64]syncapi.Job
	types     map[int64]syncapi.BreakType
	settings  map[string]string
	license   *models.License
	devices   map[string]int
	lastPush  map[string]time.Time
	refUpdate time.Time

	failUpsert error
	failFind   error
}

func newStore() *store {
	return &store{
		users:    map[string]*models.User{},
		tokens:   map[string]*models.RefreshToken{},
		entries:  map[string]*models.TimeEntry{},
		breaks:   map[string]*models.BreakEntry{},
		photos:   map[string]*models.Photo{},
		jobs:     map[int64]syncapi.Job{100: {ID: 100, Code: "J-100", Name: "Roof", Active: true}},
		types:    map[int64]syncapi.BreakType{1: {ID: 1, Name: "Lunch", DefaultMinutes: 30, Active: true}},
		settings: map[string]string{syncapi.SettingOvertimeThresholdHours: "8"},
		devices:  map[string]int{},
		lastPush: map[string]time.Time{},
	}
}

func (s *store) nextID() int64 { s.id++; return s.id }

func (s *store) RunMigrations(context.Context, *sql.DB) error { return nil }
func (s *store) Users(dbx.DBTX) users.Repository { return (*fakeUsers)(s) }
func (s *store) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return (*fakeTokens)(s) }
func (s *store) TimeEntries(dbx.DBTX) timeentries.Repository { return (*fakeEntries)(s) }
func (s *store) Breaks(dbx.DBTX) breaks.Repository { return (*fakeBreaks)(s) }
func (s *store) Photos(dbx.DBTX) photos.Repository { return (*fakePhotos)(s) }
func (s *store) Reference(dbx.DBTX) reference.Repository { return (*fakeReference)(s) }
func (s *store) Licenses(dbx.DBTX) licenses.Repository { return (*fakeLicenses)(s) }
func (s *store) Devices(dbx.DBTX) devices.Repository { return (*fakeDevices)(s) }

type fakeUsers store

func (f *fakeUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.UserName]; ok {
		return nil, common.ErrAlreadyExists
	}
	c := *u
	c.ID, c.Active, c.UpdatedAt = s.nextID(), true, time.Now()
	s.users[u.UserName] = &c
	return &c, nil
}

func (f *fakeUsers) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFind != nil {
		return nil, s.failFind
	}
	u, ok := s.users[login]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) CountActive(context.Context) (int, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if u.Active {
			n++
		}
	}
	return n, nil
}

func (f *fakeUsers) ListUpdated(_ context.Context, since time.Time) ([]*models.User, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.User
	for _, u := range s.users {
		if u.UpdatedAt.After(since) {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeTokens store

func (f *fakeTokens) Create(_ context.Context, userID int64, token string, expiresAt time.Time) error {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = &models.RefreshToken{ID: s.nextID(), UserID: userID, Token: token, Expires: expiresAt}
	return nil
}

func (f *fakeTokens) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	rt, ok := s.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *rt
	return &c, nil
}

func (f *fakeTokens) Delete(_ context.Context, token string) error {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (f *fakeTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, rt := range s.tokens {
		if rt.Expires.Before(now) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

type fakeEntries store

func (f *fakeEntries) Get(_ context.Context, guid string) (*models.TimeEntry, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFind != nil {
		return nil, s.failFind
	}
	e, ok := s.entries[guid]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *e
	return &c, nil
}

func (f *fakeEntries) GetForUpdate(ctx context.Context, guid string) (*models.TimeEntry, error) {
	return f.Get(ctx, guid)
}

func (f *fakeEntries) Upsert(_ context.Context, e *models.TimeEntry) (int64, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert != nil {
		return 0, s.failUpsert
	}
	c := *e
	id := s.nextID()
	if old, ok := s.entries[e.GUID]; ok {
		id = *old.ServerID
	}
	c.ServerID = &id
	s.entries[e.GUID] = &c
	return id, nil
}

func (f *fakeEntries) FindOverlapping(_ context.Context, workerID int64, guid string, start time.Time, end *time.Time) (*models.TimeEntry, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	probe := syncapi.TimeEntry{StartTime: start, EndTime: end}
	for _, e := range s.entries {
		if e.WorkerID == workerID && e.GUID != guid && probe.Overlaps(e.TimeEntry) {
			c := *e
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

type fakeBreaks store

func (f *fakeBreaks) GetForUpdate(_ context.Context, guid string) (*models.BreakEntry, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breaks[guid]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *b
	return &c, nil
}

func (f *fakeBreaks) Upsert(_ context.Context, b *models.BreakEntry) (int64, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *b
	id := s.nextID()
	if old, ok := s.breaks[b.GUID]; ok {
		id = *old.ServerID
	}
	c.ServerID = &id
	s.breaks[b.GUID] = &c
	return id, nil
}

type fakePhotos store

func (f *fakePhotos) Get(_ context.Context, guid string) (*models.Photo, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.photos[guid]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *p
	return &c, nil
}

func (f *fakePhotos) GetForUpdate(ctx context.Context, guid string) (*models.Photo, error) {
	return f.Get(ctx, guid)
}

func (f *fakePhotos) Upsert(_ context.Context, p *models.Photo) (int64, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	id := s.nextID()
	if old, ok := s.photos[p.GUID]; ok {
		id = *old.ServerID
	}
	c.ServerID = &id
	s.photos[p.GUID] = &c
	return id, nil
}

type fakeReference store

func (f *fakeReference) JobsSince(_ context.Context, since time.Time) ([]syncapi.Job, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []syncapi.Job{}
	for _, j := range s.jobs {
		if j.UpdatedAt.After(since) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeReference) BreakTypesSince(_ context.Context, since time.Time) ([]syncapi.BreakType, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []syncapi.BreakType{}
	for _, b := range s.types {
		if b.UpdatedAt.After(since) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeReference) Settings(context.Context) (map[string]string, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (f *fakeReference) LastUpdate(context.Context) (time.Time, error) {
	return (*store)(f).refUpdate, nil
}

func (f *fakeReference) JobExists(_ context.Context, id int64) (bool, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok, nil
}

func (f *fakeReference) BreakTypeExists(_ context.Context, id int64) (bool, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.types[id]
	return ok, nil
}

func (f *fakeReference) UpsertJob(_ context.Context, j syncapi.Job) (int64, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, old := range s.jobs {
		if old.Code == j.Code {
			j.ID = id
			s.jobs[id] = j
			return id, nil
		}
	}
	j.ID = s.nextID()
	s.jobs[j.ID] = j
	return j.ID, nil
}

func (f *fakeReference) SetSetting(_ context.Context, key, value string) error {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

type fakeLicenses store

func (f *fakeLicenses) GetActive(context.Context) (*models.License, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.license == nil {
		return nil, common.ErrorNotFound
	}
	c := *s.license
	return &c, nil
}

func (f *fakeLicenses) DeactivateAll(context.Context) error {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.license = nil
	return nil
}

func (f *fakeLicenses) Insert(_ context.Context, l *models.License) (int64, error) {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *l
	c.ID, c.Active = s.nextID(), true
	s.license = &c
	return c.ID, nil
}

type fakeDevices store

func (f *fakeDevices) Touch(_ context.Context, deviceID string, _ int64, now time.Time, push bool) error {
	s := (*store)(f)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[deviceID]++
	if push {
		s.lastPush[deviceID] = now
	}
	return nil
}

// memStore is an in-memory PhotoStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Put(_ context.Context, key, _ string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = data
	return nil
}

func (m *memStore) PresignGet(_ context.Context, key string, validity time.Duration) (string, error) {
	return "http://s3.local/" + key + "?ttl=" + validity.String(), nil
}
