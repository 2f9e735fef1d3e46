package metadata

// Keys used by the device client.
const (
	KeyUsername     = "username"
	KeySalt         = "salt"
	KeyVerifier     = "verifier"
	KeyWorkerID     = "worker_id"
	KeyDeviceID     = "device_id"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	// KeyLicense holds the raw signed license last received from the server.
	KeyLicense = "license"
	// KeyLastPull is the lastServerUpdate of the last successful pull.
	KeyLastPull = "last_pull"
	// KeyLastPullAttempt is the device clock at the last successful pull.
	KeyLastPullAttempt = "last_pull_attempt"
	KeyLastSync        = "last_sync"
)

// SessionKeys are removed on logout. Credentials stay so the worker can log
// in again offline.
var SessionKeys = []string{KeyAccessToken, KeyRefreshToken}
