package client

import (
	"errors"

	"github.com/dmitrijs2005/crewclock/internal/common"
)

var (
	ErrUnavailable           = errors.New("server unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("not found")
	ErrLocalDataNotAvailable = errors.New("local data unavailable")

	// ErrLicense and ErrValidation share identity with the server-side
	// sentinels so one errors.Is check covers both origins.
	ErrLicense    = common.ErrLicenseInvalid
	ErrValidation = common.ErrValidation
)
