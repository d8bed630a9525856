// README: State machine and group settlement tests.
package order

import "testing"

// TestCanTransition verifies the full transition table, including that the
// terminal states have no outgoing edges.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusPreparing, true},
		{StatusPreparing, StatusReadyForPickup, true},
		{StatusReadyForPickup, StatusOutForDelivery, true},
		{StatusOutForDelivery, StatusDelivered, true},
		// cancel from every non-terminal state
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusPreparing, StatusCancelled, true},
		{StatusReadyForPickup, StatusCancelled, true},
		{StatusOutForDelivery, StatusCancelled, true},
		// invalid: skipping states
		{StatusPending, StatusOutForDelivery, false},
		{StatusPending, StatusPreparing, false},
		{StatusConfirmed, StatusReadyForPickup, false},
		{StatusPreparing, StatusOutForDelivery, false},
		// invalid: backwards
		{StatusConfirmed, StatusPending, false},
		{StatusOutForDelivery, StatusPreparing, false},
		// invalid: terminal states are final
		{StatusDelivered, StatusPending, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusDelivered, StatusOutForDelivery, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusConfirmed, false},
		// invalid: self loops
		{StatusPending, StatusPending, false},
		{StatusDelivered, StatusDelivered, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusReadyForPickup, StatusOutForDelivery} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []Status{StatusDelivered, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestGroupSettle(t *testing.T) {
	g := &GroupOrder{Participants: []Participant{
		{UserID: "u1", Status: ParticipantJoined},
		{UserID: "u2", Status: ParticipantInvited},
		{UserID: "u3", Status: ParticipantDeclined},
	}}
	g.Settle()

	if !g.Finalized {
		t.Error("expected finalized group")
	}
	if g.Participants[0].Status != ParticipantJoined {
		t.Errorf("joined participant changed to %s", g.Participants[0].Status)
	}
	if g.Participants[1].Status != ParticipantDeclined {
		t.Errorf("invited participant should settle as declined, got %s", g.Participants[1].Status)
	}
}
