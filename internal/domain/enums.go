package domain

import (
	"strconv"
	"strings"
)

// TaskStatus is the canonical task status
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "TODO"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusDeferred   TaskStatus = "DEFERRED"
	TaskStatusBlocked    TaskStatus = "BLOCKED"
	TaskStatusDone       TaskStatus = "DONE"
)

// IsValid checks if the task status is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDeferred, TaskStatusBlocked, TaskStatusDone:
		return true
	}
	return false
}

// ParseTaskStatus normalises a status value. "in progress", "in-progress"
// and "IN_PROGRESS" are all accepted.
func ParseTaskStatus(v string) (TaskStatus, bool) {
	norm := strings.ToUpper(strings.TrimSpace(v))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	s := TaskStatus(norm)
	return s, s.IsValid()
}

// TaskPriority is stored as an integer in both stores
type TaskPriority int

const (
	TaskPriorityHigh   TaskPriority = 1
	TaskPriorityMedium TaskPriority = 2
	TaskPriorityLow    TaskPriority = 3
)

// DefaultTaskPriority is used when a task carries no priority
const DefaultTaskPriority = TaskPriorityLow

// String returns the priority name
func (p TaskPriority) String() string {
	switch p {
	case TaskPriorityHigh:
		return "HIGH"
	case TaskPriorityMedium:
		return "MEDIUM"
	case TaskPriorityLow:
		return "LOW"
	}
	return "UNKNOWN"
}

// IsValid checks if the priority is valid
func (p TaskPriority) IsValid() bool {
	return p >= TaskPriorityHigh && p <= TaskPriorityLow
}

// ParseTaskPriority accepts a priority name ("HIGH") or number ("1")
func ParseTaskPriority(v string) (TaskPriority, bool) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "HIGH":
		return TaskPriorityHigh, true
	case "MEDIUM":
		return TaskPriorityMedium, true
	case "LOW":
		return TaskPriorityLow, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	p := TaskPriority(n)
	return p, p.IsValid()
}

// AssigneeType is the kind of entity a task is assigned to
type AssigneeType string

const (
	AssigneeTypeUser AssigneeType = "user"
	AssigneeTypeTeam AssigneeType = "team"
)

// IsValid checks if the assignee type is valid
func (t AssigneeType) IsValid() bool {
	return t == AssigneeTypeUser || t == AssigneeTypeTeam
}
