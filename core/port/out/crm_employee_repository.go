package out

import (
	"context"

	"crm_server/core/domain"
)

// EmployeeRepository stores the staff roster.
type EmployeeRepository interface {
	// ListEmployees returns the roster in a stable order.
	ListEmployees(ctx context.Context) ([]domain.Employee, error)
	// GetEmployee returns an apperr NotFound error for unknown ids.
	GetEmployee(ctx context.Context, id string) (*domain.Employee, error)
	// SaveAllocations persists department and confidence for each employee.
	SaveAllocations(ctx context.Context, employees []domain.Employee) error
}
