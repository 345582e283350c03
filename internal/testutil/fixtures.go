package testutil

import (
	"time"

	"github.com/taskflow/taskflow/internal/domain"
)

// NewTaskDocument creates a task document with default values
func NewTaskDocument(title string) domain.Document {
	return domain.Document{
		"title":          title,
		"description":    "test description",
		"priority":       2,
		"status":         "TODO",
		"isAcknowledged": false,
		"isDeleted":      false,
		"labels":         []any{"label-a", "label-b"},
		"createdAt":      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		"createdBy":      "user-1",
	}
}

// NewUserDocument creates a user document with default values
func NewUserDocument(email string) domain.Document {
	return domain.Document{
		"google_id":  "google-" + email,
		"email_id":   email,
		"name":       "Test User",
		"created_at": time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

// NewTaskAssignmentDocument creates an active assignment of taskID to a user
func NewTaskAssignmentDocument(taskID, assigneeID string) domain.Document {
	return domain.Document{
		"task_id":     taskID,
		"assignee_id": assigneeID,
		"user_type":   "user",
		"is_active":   true,
		"created_by":  assigneeID,
		"created_at":  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}
