// Package client contains the device-side building blocks for talking to the
// CrewClock server and for opening the local database.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface): account
//     endpoints, the push and pull sync protocol, license status and photo
//     download URLs.
//  2. An HTTP JSON implementation (see HTTPClient) that injects the access
//     token, transparently refreshes an expired token once, and maps HTTP
//     status codes to sentinel errors.
//  3. A reachability probe (see HealthProber) backed by the standard gRPC
//     health service exposed by the server.
//  4. Local persistence bootstrap (InitDatabase, RunMigrations) wiring an
//     SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// Callers match failures with errors.Is against ErrUnavailable,
// ErrUnauthorized, ErrLicense, ErrValidation, ErrNotFound and
// ErrLocalDataNotAvailable. Transport and 5xx failures are ErrUnavailable;
// they are worth retrying. The others are not.
package client
