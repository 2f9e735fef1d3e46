// Package conflict decides which version of a record survives when the
// device and the server disagree about it.
package conflict

import (
	"fmt"
	"strings"
	"time"
)

// Strategy selects how a divergent pair of records is resolved.
type Strategy string

const (
	LatestWins   Strategy = "latest_wins"
	ClientWins   Strategy = "client_wins"
	ServerWins   Strategy = "server_wins"
	ManualReview Strategy = "manual_review"
)

// ParseStrategy maps a configuration value to a Strategy. Empty input yields
// LatestWins.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return LatestWins, nil
	case LatestWins, ClientWins, ServerWins, ManualReview:
		return st, nil
	default:
		return "", fmt.Errorf("unknown conflict strategy %q", s)
	}
}

// Record is anything carrying a last-modified instant.
type Record interface {
	LastModified() time.Time
}

// Winner names the side whose record was kept.
type Winner int

const (
	KeepServer Winner = iota
	KeepLocal
)

func (w Winner) String() string {
	if w == KeepLocal {
		return "local"
	}
	return "server"
}

// Decision is the outcome of Resolve. When NeedsReview is set, Resolved is
// only a provisional placeholder (the server copy).
type Decision[T Record] struct {
	Resolved    T
	Winner      Winner
	NeedsReview bool
	Reason      string
}

// Resolve picks between local and server according to strategy. Records are
// compared whole; fields are never merged. An unknown strategy is treated
// as ManualReview.
func Resolve[T Record](local, server T, strategy Strategy) Decision[T] {
	switch strategy {
	case ClientWins:
		return Decision[T]{Resolved: local, Winner: KeepLocal, Reason: "client wins"}
	case ServerWins:
		return Decision[T]{Resolved: server, Winner: KeepServer, Reason: "server wins"}
	case LatestWins:
		return latestWins(local, server)
	default:
		return review(server, "manual review required")
	}
}

func latestWins[T Record](local, server T) Decision[T] {
	lt, st := local.LastModified(), server.LastModified()

	switch {
	case lt.IsZero() || st.IsZero():
		return review(server, "missing modification time")
	case lt.After(st):
		return Decision[T]{Resolved: local, Winner: KeepLocal, Reason: "local copy is newer"}
	case st.After(lt):
		return Decision[T]{Resolved: server, Winner: KeepServer, Reason: "server copy is newer"}
	default:
		return review(server, "both copies modified at the same instant")
	}
}

func review[T Record](server T, reason string) Decision[T] {
	return Decision[T]{Resolved: server, Winner: KeepServer, NeedsReview: true, Reason: reason}
}
