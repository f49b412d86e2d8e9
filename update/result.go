package update

import (
	"errors"

	"github.com/hazyhaar/clonepages/dom"
)

// Outcome is how an applied update ended.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeMiss     Outcome = "miss"
	OutcomeRejected Outcome = "rejected"
)

// Result records one update and its outcome.
type Result struct {
	Update  ElementUpdate `json:"update"`
	Outcome Outcome       `json:"outcome"`
	Detail  string        `json:"detail,omitempty"`
}

// OutcomeOf classifies an error returned by Apply.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeApplied
	case errors.Is(err, ErrLocatorMiss):
		return OutcomeMiss
	default:
		return OutcomeRejected
	}
}

// ApplyAll applies updates in order. A miss or rejection does not stop
// the remaining updates.
func ApplyAll(doc *dom.Document, updates []ElementUpdate) []Result {
	out := make([]Result, 0, len(updates))
	for _, u := range updates {
		err := Apply(doc, u)
		r := Result{Update: u, Outcome: OutcomeOf(err)}
		if err != nil {
			r.Detail = err.Error()
		}
		out = append(out, r)
	}
	return out
}

// ValidateAll returns the first validation error with its index, or -1.
func ValidateAll(updates []ElementUpdate) (int, error) {
	for i, u := range updates {
		if err := u.Validate(); err != nil {
			return i, err
		}
	}
	return -1, nil
}
