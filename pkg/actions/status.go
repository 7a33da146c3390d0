package actions

type Status string

const (
	StatusPending  Status = "pending"
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
	StatusUndone   Status = "undone"
	StatusError    Status = "error"
)

var transitions = map[Status][]Status{
	StatusPending:  {StatusApplied, StatusRejected, StatusError},
	StatusApplied:  {StatusUndone, StatusError},
	StatusRejected: {StatusApplied, StatusError},
	StatusUndone:   {StatusApplied, StatusError},
	StatusError:    {StatusApplied, StatusRejected, StatusError},
}

// CanTransition reports whether an action may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanApply reports whether an action in this status may be (re)applied.
func (s Status) CanApply() bool { return CanTransition(s, StatusApplied) }

func (s Status) CanReject() bool { return s == StatusPending || s == StatusError }

func (s Status) CanUndo() bool { return s == StatusApplied }
