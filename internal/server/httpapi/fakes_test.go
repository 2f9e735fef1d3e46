package httpapi

import (
	"context"
	"time"

	"github.com/dmitrijs2005/crewclock/internal/license"
	"github.com/dmitrijs2005/crewclock/internal/server/models"
	"github.com/dmitrijs2005/crewclock/internal/server/services"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

type fakeUsers struct {
	salt     []byte
	err      error
	gotLogin struct {
		user, device string
		verifier     []byte
	}
	registered *models.User
}

func (f *fakeUsers) GetSalt(_ context.Context, _ string) ([]byte, error) { return f.salt, f.err }

func (f *fakeUsers) Register(_ context.Context, username, name string, salt, verifier []byte) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = &models.User{ID: 7, UserName: username, Name: name, Salt: salt, Verifier: verifier}
	return f.registered, nil
}

func (f *fakeUsers) Login(_ context.Context, user string, verifier []byte, deviceID string) (*services.LoginResult, error) {
	f.gotLogin.user, f.gotLogin.verifier, f.gotLogin.device = user, verifier, deviceID
	if f.err != nil {
		return nil, f.err
	}
	return &services.LoginResult{
		TokenPair: syncapi.TokenPair{AccessToken: "a", RefreshToken: "r"},
		WorkerID:  7,
		License:   []byte(`{"data":{}}`),
	}, nil
}

func (f *fakeUsers) RefreshToken(_ context.Context, token string) (*syncapi.TokenPair, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &syncapi.TokenPair{AccessToken: "a2", RefreshToken: token + "-next"}, nil
}

type fakeSync struct {
	err       error
	gotWorker int64
	gotReq    *syncapi.PushRequest
	gotSince  time.Time
	license   []byte
}

func (f *fakeSync) Push(_ context.Context, workerID int64, req *syncapi.PushRequest) (*syncapi.PushResponse, error) {
	f.gotWorker, f.gotReq = workerID, req
	if f.err != nil {
		return nil, f.err
	}
	resp := syncapi.NewPushResponse()
	resp.Processed = req.Len()
	return resp, nil
}

func (f *fakeSync) Pull(_ context.Context, since time.Time) (*syncapi.PullResponse, error) {
	f.gotSince = since
	if f.err != nil {
		return nil, f.err
	}
	return &syncapi.PullResponse{SystemSettings: map[string]string{}, License: f.license, LastServerUpdate: since}, nil
}

type fakeLicenses struct {
	checkErr  error
	status    license.Status
	uploadErr error
	uploaded  []byte
}

func (f *fakeLicenses) Check(context.Context, int) error { return f.checkErr }

func (f *fakeLicenses) Status(context.Context) (license.Status, error) { return f.status, nil }

func (f *fakeLicenses) Upload(_ context.Context, raw []byte) (license.Status, error) {
	f.uploaded = raw
	return f.status, f.uploadErr
}

type fakePhotos struct{ err error }

func (f *fakePhotos) DownloadURL(_ context.Context, workerID int64, guid string) (*syncapi.PhotoURLResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &syncapi.PhotoURLResponse{URL: "http://s3/" + guid}, nil
}

type fakeAdmin struct {
	err      error
	settings map[string]string
}

func (f *fakeAdmin) UpsertJob(_ context.Context, j syncapi.Job) (*syncapi.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	j.ID = 42
	return &j, nil
}

func (f *fakeAdmin) SetSetting(_ context.Context, key, value string) error {
	if f.err != nil {
		return f.err
	}
	if f.settings == nil {
		f.settings = map[string]string{}
	}
	f.settings[key] = value
	return nil
}
