package domain

// jobTransitions is the explicit legal transition table for marketplace jobs.
// Anything not listed is rejected.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusAvailable: {JobStatusAssigned, JobStatusCancelled, JobStatusExpired},
	JobStatusAssigned:  {JobStatusCompleted, JobStatusCancelled},
}

// applicationTransitions is the legal transition table for job applications.
var applicationTransitions = map[ApplicationStatus][]ApplicationStatus{
	ApplicationStatusSubmitted: {
		ApplicationStatusUnderReview,
		ApplicationStatusSelected,
		ApplicationStatusRejected,
		ApplicationStatusWithdrawn,
	},
	ApplicationStatusUnderReview: {
		ApplicationStatusSelected,
		ApplicationStatusRejected,
		ApplicationStatusWithdrawn,
	},
}

// CanJobTransition reports whether from -> to is a legal job transition.
func CanJobTransition(from, to JobStatus) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalJobStatus reports whether a job status permits no further transitions.
func IsTerminalJobStatus(s JobStatus) bool {
	return len(jobTransitions[s]) == 0
}

// CanApplicationTransition reports whether from -> to is a legal application transition.
func CanApplicationTransition(from, to ApplicationStatus) bool {
	for _, s := range applicationTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalApplicationStatus reports whether an application status permits no
// further transitions.
func IsTerminalApplicationStatus(s ApplicationStatus) bool {
	return len(applicationTransitions[s]) == 0
}

// OpenApplicationStatuses are the non-terminal application states, the set a
// selection or cancellation fan-out closes.
func OpenApplicationStatuses() []ApplicationStatus {
	return []ApplicationStatus{ApplicationStatusSubmitted, ApplicationStatusUnderReview}
}
