package attribution

// Outcome classifies a join resolution. Everything except OutcomeAttributed
// is an expected, non-fatal result.
type Outcome int

const (
	OutcomeAttributed Outcome = iota
	// OutcomeNoBaseline: no snapshot existed before this join.
	OutcomeNoBaseline
	// OutcomeFetchFailed: the live invite list could not be fetched in time.
	OutcomeFetchFailed
	// OutcomeNoUsableDelta: no code gained uses since the last snapshot.
	OutcomeNoUsableDelta
	// OutcomeAmbiguous: several codes tie for the largest gain.
	OutcomeAmbiguous
	// OutcomeUnknownOwner: the winning code is not a personal invite.
	OutcomeUnknownOwner
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAttributed:
		return "attributed"
	case OutcomeNoBaseline:
		return "no_baseline"
	case OutcomeFetchFailed:
		return "fetch_failed"
	case OutcomeNoUsableDelta:
		return "no_usable_delta"
	case OutcomeAmbiguous:
		return "ambiguous"
	case OutcomeUnknownOwner:
		return "unknown_owner"
	default:
		return "unknown"
	}
}

type Result struct {
	Outcome   Outcome
	Code      string
	InviterID string
	Delta     int
	// Tied lists the codes sharing the top delta when Outcome is OutcomeAmbiguous.
	Tied []string
}
