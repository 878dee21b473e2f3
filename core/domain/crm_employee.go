package domain

// Department is a functional team used both for routing and for staff specialization.
type Department string

const (
	DepartmentSales             Department = "Sales"
	DepartmentSupport           Department = "Support"
	DepartmentMarketing         Department = "Marketing"
	DepartmentAccountManagement Department = "Account Management"

	// DepartmentGeneral is reported for client work that has no allocated assignee.
	DepartmentGeneral Department = "General"
)

// DepartmentPriority is the fixed tie-break order between departments.
var DepartmentPriority = []Department{
	DepartmentSales,
	DepartmentSupport,
	DepartmentMarketing,
	DepartmentAccountManagement,
}

// IsKnownDepartment reports whether d is one of the staff departments.
func IsKnownDepartment(d Department) bool {
	for _, known := range DepartmentPriority {
		if d == known {
			return true
		}
	}
	return false
}

// DefaultPerformanceScore is used when an employee has no performance score.
// It is the middle of the 0-100 scale.
const DefaultPerformanceScore = 50.0

// UnassignedName is reported as the assignee when the roster is empty.
const UnassignedName = "Unassigned"

// Employee is a staff member on the roster.
type Employee struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Email                string     `json:"email"`
	RoleTitle            string     `json:"role_title,omitempty"`
	Skills               []string   `json:"skills"`
	ExperienceYears      float64    `json:"experience_years"`
	PerformanceScore     *float64   `json:"performance_score"`
	AllocatedDepartment  Department `json:"allocated_department,omitempty"`
	AllocationConfidence *int       `json:"allocation_confidence,omitempty"`
	Available            *bool      `json:"available,omitempty"` // nil means available
}

// Performance returns the performance score, falling back to the default.
func (e *Employee) Performance() float64 {
	if e.PerformanceScore == nil {
		return DefaultPerformanceScore
	}
	return *e.PerformanceScore
}

// IsAvailable reports whether the employee can take new tasks.
func (e *Employee) IsAvailable() bool {
	return e.Available == nil || *e.Available
}

// IsAllocated reports whether the employee has been allocated to a department.
func (e *Employee) IsAllocated() bool {
	return e.AllocatedDepartment != ""
}

// Clone returns a deep copy of the employee.
func (e Employee) Clone() Employee {
	c := e
	if e.Skills != nil {
		c.Skills = append([]string(nil), e.Skills...)
	}
	if e.PerformanceScore != nil {
		v := *e.PerformanceScore
		c.PerformanceScore = &v
	}
	if e.AllocationConfidence != nil {
		v := *e.AllocationConfidence
		c.AllocationConfidence = &v
	}
	if e.Available != nil {
		v := *e.Available
		c.Available = &v
	}
	return c
}

// DepartmentStats aggregates the employees allocated to one department.
type DepartmentStats struct {
	Count          int     `json:"count"`
	AvgConfidence  int     `json:"avg_confidence"`
	AvgPerformance float64 `json:"avg_performance"`
}

// DepartmentDistribution maps a department to its aggregate.
type DepartmentDistribution map[Department]DepartmentStats

// Total returns the number of employees counted across all departments.
func (d DepartmentDistribution) Total() int {
	total := 0
	for _, s := range d {
		total += s.Count
	}
	return total
}
