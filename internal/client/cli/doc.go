// Package cli is the interactive CrewClock device client.
//
// App wires the local store, the sync engine and the network monitor and
// runs a line-oriented REPL. Tracking commands work fully offline; the
// monitor flips the App between online and offline mode and pushes queued
// records when the server becomes reachable.
package cli
