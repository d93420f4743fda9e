package models

// ChangeSet is one atomic state transition: the mutated rows plus the audit
// records that make the transition durable. The store applies all of it in a
// single transaction; if any audit insert fails the whole transition fails.
type ChangeSet struct {
	Booking      *Booking
	Detail       *PaymentDetail
	Participants []Participant
	Transitions  []StateTransition
	Events       []PaymentEvent
}

// Transition appends one field-change audit record.
func (cs *ChangeSet) Transition(bookingID int64, participantID *int64, field, oldV, newV string, actor *Actor, reason string) {
	t := StateTransition{
		BookingID:     bookingID,
		ParticipantID: participantID,
		Field:         field,
		OldValue:      oldV,
		NewValue:      newV,
	}
	if actor != nil {
		id := actor.ID
		t.ActorID = &id
	}
	if reason != "" {
		r := reason
		t.Reason = &r
	}
	cs.Transitions = append(cs.Transitions, t)
}

// Event appends one payment audit record.
func (cs *ChangeSet) Event(bookingID int64, participantID *int64, externalRef, status string, amountCents int64) {
	cs.Events = append(cs.Events, PaymentEvent{
		BookingID:     bookingID,
		ParticipantID: participantID,
		ExternalRef:   externalRef,
		Status:        status,
		AmountCents:   amountCents,
	})
}
