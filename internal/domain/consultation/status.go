package consultation

// Status is the consultation lifecycle state. The set is closed; anything
// else is rejected at the boundary.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingRights Status = "pending_rights"
	StatusSent          Status = "sent"
	StatusAccepted      Status = "accepted"
	StatusRejected      Status = "rejected"
	StatusPaid          Status = "paid"
)

// ParseStatus validates a raw string against the closed status set.
func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	switch s {
	case StatusDraft, StatusPendingRights, StatusSent, StatusAccepted, StatusRejected, StatusPaid:
		return s, true
	}
	return "", false
}

// transitions is the single source of truth for legal status changes.
// Relaunch (rejected back to draft) is a distinct operation, not a table
// entry, so nothing else can walk that edge.
var transitions = map[Status][]Status{
	StatusDraft:         {StatusPendingRights, StatusSent},
	StatusPendingRights: {StatusSent, StatusDraft},
	StatusSent:          {StatusAccepted, StatusRejected},
	StatusAccepted:      {StatusPaid},
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
