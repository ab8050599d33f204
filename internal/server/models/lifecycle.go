package models

import "fmt"

// Lifecycle is the state of an object. Eliminated is terminal.
type Lifecycle int

const (
	Active Lifecycle = iota
	Trashed
	Eliminated
)

func (l Lifecycle) String() string {
	switch l {
	case Active:
		return "active"
	case Trashed:
		return "trashed"
	case Eliminated:
		return "eliminated"
	default:
		return fmt.Sprintf("Lifecycle(%d)", int(l))
	}
}

// Flags returns the persisted (in_trash, eliminated) pair for l.
func (l Lifecycle) Flags() (inTrash, eliminated bool) {
	switch l {
	case Trashed:
		return true, false
	case Eliminated:
		return false, true
	default:
		return false, false
	}
}

// LifecycleFromFlags maps the persisted flags back to a Lifecycle. Eliminated
// wins regardless of in_trash, since an object may be eliminated from the trash.
func LifecycleFromFlags(inTrash, eliminated bool) Lifecycle {
	switch {
	case eliminated:
		return Eliminated
	case inTrash:
		return Trashed
	default:
		return Active
	}
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Lifecycle) bool {
	switch {
	case from == Active && to == Trashed:
		return true
	case from == Trashed && to == Active:
		return true
	case (from == Active || from == Trashed) && to == Eliminated:
		return true
	default:
		return false
	}
}
