package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"crm_server/core/domain"
	"crm_server/core/port/out"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// EmployeeRepository implements out.EmployeeRepository
type EmployeeRepository struct {
	db *sqlx.DB
}

// NewEmployeeRepository creates a new EmployeeRepository
func NewEmployeeRepository(db *sqlx.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

var _ out.EmployeeRepository = (*EmployeeRepository)(nil)

type employeeRow struct {
	ID                   string          `db:"id"`
	Name                 string          `db:"name"`
	Email                string          `db:"email"`
	RoleTitle            string          `db:"role_title"`
	Skills               pq.StringArray  `db:"skills"`
	ExperienceYears      float64         `db:"experience_years"`
	PerformanceScore     sql.NullFloat64 `db:"performance_score"`
	AllocatedDepartment  sql.NullString  `db:"allocated_department"`
	AllocationConfidence sql.NullInt64   `db:"allocation_confidence"`
	Available            sql.NullBool    `db:"available"`
}

func (r *employeeRow) toDomain() domain.Employee {
	e := domain.Employee{
		ID:              r.ID,
		Name:            r.Name,
		Email:           r.Email,
		RoleTitle:       r.RoleTitle,
		Skills:          []string(r.Skills),
		ExperienceYears: r.ExperienceYears,
	}
	if e.Skills == nil {
		e.Skills = []string{}
	}
	if r.PerformanceScore.Valid {
		v := r.PerformanceScore.Float64
		e.PerformanceScore = &v
	}
	if r.AllocatedDepartment.Valid {
		e.AllocatedDepartment = domain.Department(r.AllocatedDepartment.String)
	}
	if r.AllocationConfidence.Valid {
		v := int(r.AllocationConfidence.Int64)
		e.AllocationConfidence = &v
	}
	if r.Available.Valid {
		v := r.Available.Bool
		e.Available = &v
	}
	return e
}

func employeeRowFrom(e domain.Employee) employeeRow {
	row := employeeRow{
		ID:              e.ID,
		Name:            e.Name,
		Email:           e.Email,
		RoleTitle:       e.RoleTitle,
		Skills:          pq.StringArray(e.Skills),
		ExperienceYears: e.ExperienceYears,
	}
	if row.Skills == nil {
		row.Skills = pq.StringArray{}
	}
	if e.PerformanceScore != nil {
		row.PerformanceScore = sql.NullFloat64{Float64: *e.PerformanceScore, Valid: true}
	}
	if e.AllocatedDepartment != "" {
		row.AllocatedDepartment = sql.NullString{String: string(e.AllocatedDepartment), Valid: true}
	}
	if e.AllocationConfidence != nil {
		row.AllocationConfidence = sql.NullInt64{Int64: int64(*e.AllocationConfidence), Valid: true}
	}
	if e.Available != nil {
		row.Available = sql.NullBool{Bool: *e.Available, Valid: true}
	}
	return row
}

const employeeColumns = `id, name, email, role_title, skills, experience_years,
	performance_score, allocated_department, allocation_confidence, available`

func (r *EmployeeRepository) ListEmployees(ctx context.Context) ([]domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees ORDER BY sort_order, id`

	var rows []employeeRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, translate("list employees", err)
	}

	employees := make([]domain.Employee, len(rows))
	for i := range rows {
		employees[i] = rows[i].toDomain()
	}
	return employees, nil
}

func (r *EmployeeRepository) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE id = $1`

	var row employeeRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, translate("employee", err)
	}
	e := row.toDomain()
	return &e, nil
}

// SaveAllocations updates the allocation columns in one transaction.
func (r *EmployeeRepository) SaveAllocations(ctx context.Context, employees []domain.Employee) error {
	if len(employees) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return translate("begin allocation update", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE employees
		SET allocated_department = :allocated_department,
		    allocation_confidence = :allocation_confidence,
		    updated_at = NOW()
		WHERE id = :id`

	for _, e := range employees {
		row := employeeRowFrom(e)
		if _, err := tx.NamedExecContext(ctx, query, &row); err != nil {
			return translate(fmt.Sprintf("update allocation of %s", e.ID), err)
		}
	}
	return translate("commit allocation update", tx.Commit())
}

// UpsertEmployees imports employees, keeping existing allocations when the
// imported record has none.
func (r *EmployeeRepository) UpsertEmployees(ctx context.Context, employees []domain.Employee) error {
	if len(employees) == 0 {
		return nil
	}

	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES (:id, :name, :email, :role_title, :skills, :experience_years,
		        :performance_score, :allocated_department, :allocation_confidence, :available)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			role_title = EXCLUDED.role_title,
			skills = EXCLUDED.skills,
			experience_years = EXCLUDED.experience_years,
			performance_score = EXCLUDED.performance_score,
			available = EXCLUDED.available,
			allocated_department = COALESCE(EXCLUDED.allocated_department, employees.allocated_department),
			allocation_confidence = COALESCE(EXCLUDED.allocation_confidence, employees.allocation_confidence),
			updated_at = NOW()`

	rows := make([]employeeRow, len(employees))
	for i, e := range employees {
		rows[i] = employeeRowFrom(e)
	}
	if _, err := r.db.NamedExecContext(ctx, query, rows); err != nil {
		return translate("upsert employees", err)
	}
	return nil
}

// CountEmployees returns the roster size.
func (r *EmployeeRepository) CountEmployees(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM employees`); err != nil {
		return 0, translate("count employees", err)
	}
	return n, nil
}
