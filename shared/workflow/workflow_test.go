package workflow

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from string
		to   string
		want bool
	}{
		{ComplaintReported, ComplaintApproved, true},
		{ComplaintReported, ComplaintWaitingWardenApproval, true},
		{ComplaintWaitingWardenApproval, ComplaintRejected, true},
		{ComplaintApproved, ComplaintWaitingForSkilledStaff, true},
		{ComplaintWaitingForSkilledStaff, ComplaintAssigned, true},
		{ComplaintAssigned, ComplaintInProgress, true},
		{ComplaintInProgress, ComplaintResolved, true},
		{ComplaintWorkSubmitted, ComplaintInProgress, true},
		{ComplaintResolved, ComplaintClosed, true},
		{" Resolved ", "CLOSED", true},
		{ComplaintReported, ComplaintAssigned, false},
		{ComplaintRejected, ComplaintApproved, false},
		{ComplaintClosed, ComplaintInProgress, false},
		{ComplaintAssigned, ComplaintClosed, false},
		{ComplaintInProgress, ComplaintClosed, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEventTypeForTransition(t *testing.T) {
	if ev := EventTypeForTransition(ComplaintResolved, ComplaintClosed); ev != EventComplaintClosed {
		t.Fatalf("expected %q, got %q", EventComplaintClosed, ev)
	}
	if ev := EventTypeForTransition(ComplaintAssigned, ComplaintAssigned); ev != "" {
		t.Fatalf("expected no event for self transition, got %q", ev)
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, status := range AllComplaintStatuses() {
		terminal := IsTerminal(status)
		hasExit := len(complaintTransitions[status]) > 0
		if terminal == hasExit {
			t.Fatalf("status %q: terminal=%v but has exits=%v", status, terminal, hasExit)
		}
	}
	if !IsOpen(ComplaintResolved) {
		t.Fatalf("resolved complaint must count as open until closed")
	}
	if IsOpen(ComplaintClosed) || IsOpen(ComplaintRejected) {
		t.Fatalf("terminal complaints must not count as open")
	}
	if !IsOpen(ComplaintWaitingForSkilledStaff) {
		t.Fatalf("waiting complaint must count as open")
	}
}

func TestTaskAndEmergencyTransitions(t *testing.T) {
	if !CanTransitionTask(TaskWaitingForAvailability, TaskAssigned) {
		t.Fatalf("expected waiting -> assigned to be allowed")
	}
	if CanTransitionTask(TaskCompleted, TaskAssigned) {
		t.Fatalf("expected completed -> assigned to be blocked")
	}
	if CanTransitionEmergency(EmergencyResolved, EmergencyTriggered) {
		t.Fatalf("expected resolved -> triggered to be blocked")
	}
}
