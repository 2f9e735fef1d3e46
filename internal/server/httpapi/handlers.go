package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", common.ErrValidation, err)
	}
	return nil
}

func decodeBase64(field, v string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil || len(b) == 0 {
		return nil, fmt.Errorf("%w: %s must be non-empty base64", common.ErrValidation, field)
	}
	return b, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) salt(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		s.writeError(w, r, fmt.Errorf("%w: username is required", common.ErrValidation))
		return
	}
	salt, err := s.deps.Users.GetSalt(r.Context(), username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncapi.SaltResponse{Salt: base64.StdEncoding.EncodeToString(salt)})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req syncapi.RegisterRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	salt, err := decodeBase64("salt", req.Salt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	verifier, err := decodeBase64("verifier", req.Verifier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.deps.Users.Register(r.Context(), req.Username, req.Name, salt, verifier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, syncapi.RegisterResponse{WorkerID: u.ID})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req syncapi.LoginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	verifier, err := decodeBase64("verifier", req.Verifier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = r.Header.Get(common.DeviceIDHeader)
	}

	res, err := s.deps.Users.Login(r.Context(), req.Username, verifier, deviceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, syncapi.LoginResponse{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		WorkerID:     res.WorkerID,
		License:      res.License,
	})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req syncapi.RefreshRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		s.writeError(w, r, fmt.Errorf("%w: refreshToken is required", common.ErrValidation))
		return
	}
	pair, err := s.deps.Users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *Server) push(w http.ResponseWriter, r *http.Request) {
	workerID, _ := WorkerIDFromContext(r.Context())

	var req syncapi.PushRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.DeviceID == "" {
		req.DeviceID = r.Header.Get(common.DeviceIDHeader)
	}

	resp, err := s.deps.Sync.Push(r.Context(), workerID, &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) pull(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: since must be an RFC 3339 timestamp", common.ErrValidation))
			return
		}
		since = t.UTC()
	}

	resp, err := s.deps.Sync.Pull(r.Context(), since)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) licenseStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Licenses.Status(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) photoURL(w http.ResponseWriter, r *http.Request) {
	workerID, _ := WorkerIDFromContext(r.Context())
	resp, err := s.deps.Photos.DownloadURL(r.Context(), workerID, mux.Vars(r)["guid"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// uploadLicense takes the signed license document as the raw body.
func (s *Server) uploadLicense(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", common.ErrValidation, err))
		return
	}
	st, err := s.deps.Licenses.Upload(r.Context(), raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) upsertJob(w http.ResponseWriter, r *http.Request) {
	var job syncapi.Job
	if err := s.decode(w, r, &job); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved, err := s.deps.Admin.UpsertJob(r.Context(), job)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) setSetting(w http.ResponseWriter, r *http.Request) {
	var req syncapi.SettingRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Admin.SetSetting(r.Context(), mux.Vars(r)["key"], req.Value); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
