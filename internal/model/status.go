package model

// Status is one of the closed set of job lifecycle states.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// AllStatuses lists every valid status in a stable order.
var AllStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusFailed}

// transitions maps each status to the set of statuses it may move to.
// Every status may move to every other one; a self-transition is handled
// upstream as an idempotent no-op. If terminal states are ever wanted,
// this table is the single place to tighten.
var transitions = func() map[Status]map[Status]bool {
	t := make(map[Status]map[Status]bool, len(AllStatuses))
	for _, from := range AllStatuses {
		t[from] = make(map[Status]bool, len(AllStatuses)-1)
		for _, to := range AllStatuses {
			if from != to {
				t[from][to] = true
			}
		}
	}
	return t
}()

// ParseStatus validates a raw status value against the enumeration.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	_, ok := transitions[s]
	return s, ok
}

// Valid reports whether s is a member of the enumeration.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a job may move from old to new. An empty old
// status (a job that has never had one) accepts any valid target.
func CanTransition(old, new Status) bool {
	if !new.Valid() {
		return false
	}
	if old == "" {
		return true
	}
	return transitions[old][new]
}
