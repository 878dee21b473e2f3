package out

import (
	"context"

	"crm_server/core/domain"
)

// TaskRepository stores the follow-up task list.
type TaskRepository interface {
	// ListTasks returns tasks in a stable order.
	ListTasks(ctx context.Context) ([]domain.Task, error)
	// SaveTasks persists status and assignee for each task.
	SaveTasks(ctx context.Context, tasks []domain.Task) error
}
