package tpl

import "fmt"

// Level is a task priority level. Higher values preempt lower ones.
type Level uint8

const (
	Application Level = 4
	Callback    Level = 8
	Notify      Level = 16
	HighLevel   Level = 31
)

func (l Level) String() string {
	switch l {
	case Application:
		return "APPLICATION"
	case Callback:
		return "CALLBACK"
	case Notify:
		return "NOTIFY"
	case HighLevel:
		return "HIGH_LEVEL"
	default:
		return fmt.Sprintf("TPL(%d)", uint8(l))
	}
}

// Controller raises and restores the current priority level.
type Controller interface {
	// Raise moves the current level up to at least l and returns the level
	// that was current before the call.
	Raise(l Level) Level
	// Restore drops the current level back to l, running any deferred work
	// above l before returning.
	Restore(l Level)
}
