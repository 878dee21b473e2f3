package domain

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusOpen     TaskStatus = "open"
	TaskStatusAssigned TaskStatus = "assigned"
	TaskStatusDone     TaskStatus = "done"
)

// Task is a unit of follow-up work handed to a staff member.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	ClientEmail  string     `json:"client_email,omitempty"`
	Status       TaskStatus `json:"status"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	AssignedName string     `json:"assigned_name,omitempty"`
}

// IsAssigned reports whether a staff member owns the task.
func (t *Task) IsAssigned() bool {
	return t.AssignedTo != ""
}
