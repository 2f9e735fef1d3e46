// Package syncapi defines the JSON documents exchanged between the device
// client and the server: synced records, the push and pull protocols and the
// authentication endpoints.
//
// Every record carries its offline GUID, assigned on the device when the
// record is created. The GUID is the idempotency key of the push protocol:
// the server treats a re-submitted GUID with unchanged content as a no-op
// success.
package syncapi
