package devices

import (
	"context"
	"time"
)

type Repository interface {
	// Touch records that the device was seen for userID at now. A push
	// also updates last_push_at.
	Touch(ctx context.Context, deviceID string, userID int64, now time.Time, push bool) error
}
