// Package verifiers answers "did this player meet the goal on this day"
// against third-party activity providers.
package verifiers

import (
	"context"
	"sort"
	"time"

	"pact-oracle/models"
)

// Outcome separates a verified miss from an answer we could not get.
type Outcome int

const (
	Unavailable Outcome = iota
	Met
	NotMet
)

func (o Outcome) String() string {
	switch o {
	case Met:
		return "met"
	case NotMet:
		return "not_met"
	}
	return "unavailable"
}

// Verifier checks one identity against a threshold for the UTC day of asOf.
// A missing day of data is NotMet; any failure to ask is Unavailable with
// the cause in err.
type Verifier interface {
	GoalMet(ctx context.Context, identity string, threshold uint64, asOf time.Time) (Outcome, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, identity string, threshold uint64, asOf time.Time) (Outcome, error)

func (f VerifierFunc) GoalMet(ctx context.Context, identity string, threshold uint64, asOf time.Time) (Outcome, error) {
	return f(ctx, identity, threshold, asOf)
}

// Registry maps goal types to the verifier that can check them. Goal types
// without an entry are not externally verified.
type Registry struct {
	verifiers map[models.GoalType]Verifier
}

func NewRegistry() *Registry {
	return &Registry{verifiers: make(map[models.GoalType]Verifier)}
}

func (r *Registry) Register(goal models.GoalType, v Verifier) {
	r.verifiers[goal] = v
}

func (r *Registry) Lookup(goal models.GoalType) (Verifier, bool) {
	v, ok := r.verifiers[goal]
	return v, ok
}

// GoalTypes lists the registered goal types in name order.
func (r *Registry) GoalTypes() []models.GoalType {
	out := make([]models.GoalType, 0, len(r.verifiers))
	for g := range r.verifiers {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
