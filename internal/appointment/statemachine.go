package appointment

// transitions is the full edge set of the lifecycle. Statuses missing from the
// map, or mapped to nothing, are terminal.
var transitions = map[Status][]Status{
	StatusScheduled:  {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// CanTransition reports whether from -> to is an edge. Self-loops are never edges.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Next lists the statuses reachable from s in one step.
func (s Status) Next() []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// ConfirmPayment is the patch a successful payment applies: the payment becomes
// PAID and a SCHEDULED appointment moves to CONFIRMED along its normal edge.
// Any other status is left alone.
func ConfirmPayment(a *Appointment) Patch {
	paid := PaymentPaid
	p := Patch{PaymentStatus: &paid}
	if a.Status == StatusScheduled && CanTransition(a.Status, StatusConfirmed) {
		confirmed := StatusConfirmed
		p.Status = &confirmed
	}
	return p
}
