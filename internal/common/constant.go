package common

const (
	// AuthorizationHeader carries "Bearer <access token>" on API requests.
	AuthorizationHeader = "Authorization"

	// AdminTokenHeader carries the shared admin secret for license uploads.
	AdminTokenHeader = "X-Admin-Token"

	// DeviceIDHeader identifies the device making a request.
	DeviceIDHeader = "X-Device-ID"

	// SyncHealthService is the gRPC health service name reported by the server.
	SyncHealthService = "crewclock.sync"
)
