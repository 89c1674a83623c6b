package workflow

import "strings"

const (
	ComplaintReported               = "reported"
	ComplaintWaitingWardenApproval  = "waiting_warden_approval"
	ComplaintApproved               = "approved"
	ComplaintRejected               = "rejected"
	ComplaintWaitingForSkilledStaff = "waiting_for_skilled_staff"
	ComplaintAssigned               = "assigned"
	ComplaintInProgress             = "in_progress"
	ComplaintWorkSubmitted          = "work_submitted"
	ComplaintResolved               = "resolved"
	ComplaintClosed                 = "closed"
)

const (
	TaskPendingAssignment      = "pending_assignment"
	TaskWaitingForAvailability = "waiting_for_availability"
	TaskAssigned               = "assigned"
	TaskInProgress             = "in_progress"
	TaskCompleted              = "completed"
)

const (
	EmergencyTriggered  = "triggered"
	EmergencyResponding = "responding"
	EmergencyResolved   = "resolved"
)

// Event names emitted on complaint transitions; also used as audit actions.
const (
	EventComplaintApproved       = "complaint.approved"
	EventComplaintRejected       = "complaint.rejected"
	EventComplaintEscalated      = "complaint.sent_to_warden"
	EventComplaintAssigned       = "complaint.assigned"
	EventComplaintAwaitingStaff  = "complaint.awaiting_staff"
	EventComplaintStarted        = "complaint.started"
	EventComplaintWorkSubmitted  = "complaint.work_submitted"
	EventComplaintResolved       = "complaint.resolved"
	EventComplaintReopened       = "complaint.reopened"
	EventComplaintClosed         = "complaint.closed"
	EventComplaintReturnedToPool = "complaint.returned_to_pool"
)

var complaintTransitions = map[string]map[string]string{
	ComplaintReported: {
		ComplaintApproved:              EventComplaintApproved,
		ComplaintRejected:              EventComplaintRejected,
		ComplaintWaitingWardenApproval: EventComplaintEscalated,
	},
	ComplaintWaitingWardenApproval: {
		ComplaintApproved: EventComplaintApproved,
		ComplaintRejected: EventComplaintRejected,
	},
	ComplaintApproved: {
		ComplaintAssigned:               EventComplaintAssigned,
		ComplaintWaitingForSkilledStaff: EventComplaintAwaitingStaff,
	},
	ComplaintWaitingForSkilledStaff: {
		ComplaintAssigned: EventComplaintAssigned,
	},
	ComplaintAssigned: {
		ComplaintInProgress:             EventComplaintStarted,
		ComplaintWaitingForSkilledStaff: EventComplaintReturnedToPool,
	},
	ComplaintInProgress: {
		ComplaintWorkSubmitted: EventComplaintWorkSubmitted,
		ComplaintResolved:      EventComplaintResolved,
	},
	ComplaintWorkSubmitted: {
		ComplaintResolved:   EventComplaintResolved,
		ComplaintInProgress: EventComplaintReopened,
	},
	ComplaintResolved: {
		ComplaintClosed:     EventComplaintClosed,
		ComplaintInProgress: EventComplaintReopened,
	},
}

var taskTransitions = map[string][]string{
	TaskPendingAssignment:      {TaskAssigned, TaskWaitingForAvailability},
	TaskWaitingForAvailability: {TaskAssigned, TaskPendingAssignment},
	TaskAssigned:               {TaskAssigned, TaskInProgress, TaskPendingAssignment, TaskWaitingForAvailability},
	TaskInProgress:             {TaskCompleted},
}

var emergencyTransitions = map[string][]string{
	EmergencyTriggered:  {EmergencyResponding, EmergencyResolved},
	EmergencyResponding: {EmergencyResolved},
}

func Normalize(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func CanTransition(fromStatus string, toStatus string) bool {
	fromStatus = Normalize(fromStatus)
	toStatus = Normalize(toStatus)
	if fromStatus == toStatus {
		return true
	}
	next := complaintTransitions[fromStatus]
	if next == nil {
		return false
	}
	_, ok := next[toStatus]
	return ok
}

func EventTypeForTransition(fromStatus string, toStatus string) string {
	fromStatus = Normalize(fromStatus)
	toStatus = Normalize(toStatus)
	if fromStatus == toStatus {
		return ""
	}
	next := complaintTransitions[fromStatus]
	if next == nil {
		return ""
	}
	return next[toStatus]
}

// IsTerminal reports whether no transition leaves the complaint status.
func IsTerminal(status string) bool {
	status = Normalize(status)
	return status == ComplaintRejected || status == ComplaintClosed
}

// IsOpen reports whether the complaint still blocks a new one for the same
// location. A resolved complaint stays open until its otp closes it.
func IsOpen(status string) bool {
	return !IsTerminal(status)
}

func CanTransitionTask(fromStatus string, toStatus string) bool {
	return allowed(taskTransitions, fromStatus, toStatus)
}

func CanTransitionEmergency(fromStatus string, toStatus string) bool {
	return allowed(emergencyTransitions, fromStatus, toStatus)
}

func allowed(table map[string][]string, fromStatus string, toStatus string) bool {
	fromStatus = Normalize(fromStatus)
	toStatus = Normalize(toStatus)
	if fromStatus == toStatus {
		return true
	}
	for _, next := range table[fromStatus] {
		if next == toStatus {
			return true
		}
	}
	return false
}

func AllComplaintStatuses() []string {
	return []string{
		ComplaintReported,
		ComplaintWaitingWardenApproval,
		ComplaintApproved,
		ComplaintRejected,
		ComplaintWaitingForSkilledStaff,
		ComplaintAssigned,
		ComplaintInProgress,
		ComplaintWorkSubmitted,
		ComplaintResolved,
		ComplaintClosed,
	}
}
