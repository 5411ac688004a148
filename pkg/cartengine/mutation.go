package cartengine

import "context"

// mutationState tracks a cart mutation through its lifecycle. A mutation is
// applied optimistically, then either reaches synced when its backing call
// succeeds or rolledback when the inverse had to be applied.
type mutationState int

const (
	mutationPending mutationState = iota
	mutationApplied
	mutationSynced
	mutationRolledBack
)

func (s mutationState) String() string {
	switch s {
	case mutationPending:
		return "pending"
	case mutationApplied:
		return "applied"
	case mutationSynced:
		return "synced"
	case mutationRolledBack:
		return "rolledback"
	default:
		return "unknown"
	}
}

// mutation is one optimistic cart change. apply and invert are exact
// inverses over the engine's item slice; call is the matching server
// operation for authenticated sessions.
type mutation struct {
	op    string
	state mutationState

	apply  func()
	invert func()
	call   func(ctx context.Context) error
}

func (m *mutation) rollback() {
	m.invert()
	m.state = mutationRolledBack
}
