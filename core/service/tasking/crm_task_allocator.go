// Package tasking hands unassigned tasks to available staff.
package tasking

import "crm_server/core/domain"

// Allocate assigns every unassigned task to the available employees in roster
// order, moving to the next employee after each task. Tasks that already have
// an owner are kept as they are. It returns new task values and the number of
// tasks assigned; without available employees nothing is assigned.
func Allocate(tasks []domain.Task, employees []domain.Employee) ([]domain.Task, int) {
	out := make([]domain.Task, len(tasks))
	copy(out, tasks)

	available := make([]*domain.Employee, 0, len(employees))
	for i := range employees {
		if employees[i].IsAvailable() {
			available = append(available, &employees[i])
		}
	}
	if len(available) == 0 {
		return out, 0
	}

	next, assigned := 0, 0
	for i := range out {
		if out[i].IsAssigned() {
			continue
		}
		e := available[next%len(available)]
		out[i].AssignedTo = e.ID
		out[i].AssignedName = e.Name
		out[i].Status = domain.TaskStatusAssigned
		next++
		assigned++
	}
	return out, assigned
}

// Workload counts the tasks owned by each employee id.
func Workload(tasks []domain.Task) map[string]int {
	load := make(map[string]int)
	for i := range tasks {
		if tasks[i].IsAssigned() {
			load[tasks[i].AssignedTo]++
		}
	}
	return load
}
