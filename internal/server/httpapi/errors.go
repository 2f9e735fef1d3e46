package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/crewclock/internal/common"
	"github.com/dmitrijs2005/crewclock/internal/server/services"
	"github.com/dmitrijs2005/crewclock/internal/syncapi"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		enc := json.NewEncoder(w)
		// Signed license documents are embedded verbatim.
		enc.SetEscapeHTML(false)
		_ = enc.Encode(v)
	}
}

// writeError maps service errors onto status codes. The body text of an
// expired access token is exactly common.ErrTokenExpired so that devices
// know to refresh.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var le *services.LicenseError
	switch {
	case errors.As(err, &le):
		base := common.ErrLicenseInvalid
		if errors.Is(err, common.ErrNoLicense) {
			base = common.ErrNoLicense
		}
		writeJSON(w, http.StatusForbidden, syncapi.ErrorResponse{Error: base.Error(), Details: le.Status.Errors})
	case errors.Is(err, common.ErrNoLicense), errors.Is(err, common.ErrLicenseInvalid):
		writeJSON(w, http.StatusForbidden, syncapi.ErrorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrValidation):
		writeJSON(w, http.StatusBadRequest, syncapi.ErrorResponse{Error: err.Error()})
	case errors.Is(err, common.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, syncapi.ErrorResponse{Error: common.ErrAlreadyExists.Error()})
	case errors.Is(err, common.ErrTokenExpired):
		writeJSON(w, http.StatusUnauthorized, syncapi.ErrorResponse{Error: common.ErrTokenExpired.Error()})
	case errors.Is(err, common.ErrRefreshTokenExpired):
		writeJSON(w, http.StatusUnauthorized, syncapi.ErrorResponse{Error: common.ErrRefreshTokenExpired.Error()})
	case errors.Is(err, common.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, syncapi.ErrorResponse{Error: common.ErrInvalidToken.Error()})
	case errors.Is(err, common.ErrorUnauthorized):
		writeJSON(w, http.StatusUnauthorized, syncapi.ErrorResponse{Error: common.ErrorUnauthorized.Error()})
	case errors.Is(err, common.ErrorNotFound):
		writeJSON(w, http.StatusNotFound, syncapi.ErrorResponse{Error: common.ErrorNotFound.Error()})
	default:
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, syncapi.ErrorResponse{Error: common.ErrorInternal.Error()})
	}
}
