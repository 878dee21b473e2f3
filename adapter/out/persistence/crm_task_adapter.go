package persistence

import (
	"context"
	"fmt"

	"crm_server/core/domain"
	"crm_server/core/port/out"

	"github.com/jmoiron/sqlx"
)

// TaskRepository implements out.TaskRepository
type TaskRepository struct {
	db *sqlx.DB
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

var _ out.TaskRepository = (*TaskRepository)(nil)

type taskRow struct {
	ID           string `db:"id"`
	Title        string `db:"title"`
	Description  string `db:"description"`
	ClientEmail  string `db:"client_email"`
	Status       string `db:"status"`
	AssignedTo   string `db:"assigned_to"`
	AssignedName string `db:"assigned_name"`
}

func (r *taskRow) toDomain() domain.Task {
	return domain.Task{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description,
		ClientEmail:  r.ClientEmail,
		Status:       domain.TaskStatus(r.Status),
		AssignedTo:   r.AssignedTo,
		AssignedName: r.AssignedName,
	}
}

func taskRowFrom(t domain.Task) taskRow {
	status := t.Status
	if status == "" {
		status = domain.TaskStatusOpen
	}
	return taskRow{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		ClientEmail:  t.ClientEmail,
		Status:       string(status),
		AssignedTo:   t.AssignedTo,
		AssignedName: t.AssignedName,
	}
}

const taskColumns = `id, title, description, client_email, status, assigned_to, assigned_name`

func (r *TaskRepository) ListTasks(ctx context.Context) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY sort_order, id`

	var rows []taskRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, translate("list tasks", err)
	}

	tasks := make([]domain.Task, len(rows))
	for i := range rows {
		tasks[i] = rows[i].toDomain()
	}
	return tasks, nil
}

// SaveTasks updates status and assignee in one transaction.
func (r *TaskRepository) SaveTasks(ctx context.Context, tasks []domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translate("begin task update", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE tasks
		SET status = :status,
		    assigned_to = :assigned_to,
		    assigned_name = :assigned_name,
		    updated_at = NOW()
		WHERE id = :id`

	for _, t := range tasks {
		row := taskRowFrom(t)
		if _, err := tx.NamedExecContext(ctx, query, &row); err != nil {
			return translate(fmt.Sprintf("update task %s", t.ID), err)
		}
	}
	return translate("commit task update", tx.Commit())
}

// UpsertTasks imports tasks, keeping an existing assignee when the imported
// task has none.
func (r *TaskRepository) UpsertTasks(ctx context.Context, tasks []domain.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (:id, :title, :description, :client_email, :status, :assigned_to, :assigned_name)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			client_email = EXCLUDED.client_email,
			status = CASE WHEN EXCLUDED.assigned_to = '' THEN tasks.status ELSE EXCLUDED.status END,
			assigned_to = CASE WHEN EXCLUDED.assigned_to = '' THEN tasks.assigned_to ELSE EXCLUDED.assigned_to END,
			assigned_name = CASE WHEN EXCLUDED.assigned_to = '' THEN tasks.assigned_name ELSE EXCLUDED.assigned_name END,
			updated_at = NOW()`

	rows := make([]taskRow, len(tasks))
	for i, t := range tasks {
		rows[i] = taskRowFrom(t)
	}
	if _, err := r.db.NamedExecContext(ctx, query, rows); err != nil {
		return translate("upsert tasks", err)
	}
	return nil
}

// CountTasks returns the number of stored tasks.
func (r *TaskRepository) CountTasks(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM tasks`); err != nil {
		return 0, translate("count tasks", err)
	}
	return n, nil
}
