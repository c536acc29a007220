// Package lifecycle is the central authority on which status transitions
// are legal for a benefit request, and for which actor. Transitions are
// table-driven: each edge carries the required current status, an optional
// request-state condition, and actor guards. Persistence-level
// compare-and-swap preconditions enforce the same rules race-free; this
// package answers the question before the write is attempted.
package lifecycle

import (
	"fmt"

	"github.com/provfund/benefits-engine/internal/apperr"
	"github.com/provfund/benefits-engine/internal/domain/entity"
)

// Actor is the authenticated identity attempting a transition.
type Actor struct {
	ID   string
	Role entity.Role
}

// View is the slice of request state the machine needs to evaluate guards.
type View struct {
	SubjectUserID     string
	AssistantID       string
	OfficerID         string
	ReadyForReview    bool
	CurrentApproverID string
}

// Context carries the actor and request view for one transition attempt.
type Context struct {
	Actor Actor
	View  View
}

// CondFunc evaluates a request-state precondition. A failing condition
// means the edge does not apply from this state, which surfaces as an
// invalid transition rather than an authorization failure.
type CondFunc func(v View) bool

// GuardFunc evaluates whether the acting identity may take the edge.
type GuardFunc func(tc Context) bool

type transition struct {
	toStatus entity.Status
	when     CondFunc
	guards   []GuardFunc
}

type statusConfig struct {
	transitions map[Trigger][]transition
}

// Machine holds the transition table for one request kind.
type Machine struct {
	kind    entity.RequestKind
	configs map[entity.Status]*statusConfig
}

// Builder assembles a Machine from Permit calls.
type Builder struct {
	kind    entity.RequestKind
	configs map[entity.Status]*statusConfig
}

// NewBuilder creates a builder for the given request kind.
func NewBuilder(kind entity.RequestKind) *Builder {
	return &Builder{
		kind:    kind,
		configs: make(map[entity.Status]*statusConfig),
	}
}

// Permit allows a trigger to transition from one status to another,
// subject to the given actor guards. An actor passes if any guard passes.
func (b *Builder) Permit(from entity.Status, trigger Trigger, to entity.Status, guards ...GuardFunc) *Builder {
	return b.PermitWhen(from, trigger, to, nil, guards...)
}

// PermitWhen is Permit with an additional request-state condition that
// must hold for the edge to exist at all.
func (b *Builder) PermitWhen(from entity.Status, trigger Trigger, to entity.Status, when CondFunc, guards ...GuardFunc) *Builder {
	config, ok := b.configs[from]
	if !ok {
		config = &statusConfig{transitions: make(map[Trigger][]transition)}
		b.configs[from] = config
	}
	config.transitions[trigger] = append(config.transitions[trigger], transition{
		toStatus: to,
		when:     when,
		guards:   guards,
	})
	return b
}

// Build creates the immutable machine.
func (b *Builder) Build() *Machine {
	configs := make(map[entity.Status]*statusConfig, len(b.configs))
	for status, config := range b.configs {
		copied := &statusConfig{transitions: make(map[Trigger][]transition, len(config.transitions))}
		for trigger, transitions := range config.transitions {
			copied.transitions[trigger] = append([]transition{}, transitions...)
		}
		configs[status] = copied
	}
	return &Machine{kind: b.kind, configs: configs}
}

// Resolve returns the status the request moves to when the trigger fires
// from the given status, or a typed error: ErrInvalidTransition when no
// applicable edge exists, ErrNotAuthorized when an edge exists but the
// actor fails every guard.
func (m *Machine) Resolve(from entity.Status, trigger Trigger, tc Context) (entity.Status, error) {
	config, ok := m.configs[from]
	if !ok {
		return "", fmt.Errorf("%w: %s from %s (%s)", apperr.ErrInvalidTransition, trigger, from, m.kind)
	}

	transitions, ok := config.transitions[trigger]
	if !ok || len(transitions) == 0 {
		return "", fmt.Errorf("%w: %s from %s (%s)", apperr.ErrInvalidTransition, trigger, from, m.kind)
	}

	edgeApplies := false
	for _, t := range transitions {
		if t.when != nil && !t.when(tc.View) {
			continue
		}
		edgeApplies = true
		if guardsPass(t.guards, tc) {
			return t.toStatus, nil
		}
	}

	if !edgeApplies {
		return "", fmt.Errorf("%w: %s from %s (%s)", apperr.ErrInvalidTransition, trigger, from, m.kind)
	}
	return "", fmt.Errorf("%w: actor %s may not %s", apperr.ErrNotAuthorized, tc.Actor.ID, trigger)
}

// Can reports whether the trigger would resolve for this actor. Used by
// the access policy projection so enforcement and affordance share one
// transition table.
func (m *Machine) Can(from entity.Status, trigger Trigger, tc Context) bool {
	_, err := m.Resolve(from, trigger, tc)
	return err == nil
}

func guardsPass(guards []GuardFunc, tc Context) bool {
	if len(guards) == 0 {
		return true
	}
	for _, g := range guards {
		if g(tc) {
			return true
		}
	}
	return false
}
