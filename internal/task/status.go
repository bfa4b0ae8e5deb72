package task

import "github.com/dukerupert/taskpay/internal/model"

// IsTerminal reports whether no further transition is possible from s.
func IsTerminal(s model.TaskStatus) bool {
	return s == model.TaskCompleted || s == model.TaskFailed
}

// Valid reports whether s is one of the known task statuses.
func Valid(s model.TaskStatus) bool {
	switch s {
	case model.TaskActive, model.TaskWaitingForReview, model.TaskCompleted, model.TaskFailed:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is an edge of the task lifecycle:
// active -> waiting_for_review -> {completed, failed}.
func CanTransition(from, to model.TaskStatus) bool {
	switch from {
	case model.TaskActive:
		return to == model.TaskWaitingForReview
	case model.TaskWaitingForReview:
		return to == model.TaskCompleted || to == model.TaskFailed
	default:
		return false
	}
}

// Editable reports whether a task's description, reward or deadline may change.
func Editable(s model.TaskStatus) bool {
	return s == model.TaskActive
}
