package conflict

// Kind is the detected cause of a conflict.
type Kind string

const (
	// UpdateRace means the server holds different content for the same GUID.
	UpdateRace Kind = "update_race"
	// Overlap means a time entry double-books the worker.
	Overlap Kind = "overlap"
	// MissingReference means a child arrived before its parent time entry.
	MissingReference Kind = "missing_reference"
)

// Severity is the triage label shown to operators.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// SeverityOf classifies a conflict kind for display.
func SeverityOf(k Kind) Severity {
	switch k {
	case Overlap:
		return SeverityHigh
	case UpdateRace:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// StrategyFor returns the strategy to apply for kind k given the configured
// default. Overlaps always go to manual review.
func StrategyFor(k Kind, configured Strategy) Strategy {
	if k == Overlap {
		return ManualReview
	}
	return configured
}
