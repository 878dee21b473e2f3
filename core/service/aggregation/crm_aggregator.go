// Package aggregation builds per-client work items and engagement metrics
// from classified messages.
package aggregation

import (
	"strings"

	"crm_server/core/domain"
)

// Aggregator groups customer messages by sender and resolves an assignee per client.
type Aggregator struct {
	fallback domain.Department
}

// NewAggregator creates an aggregator whose secondary pool is the given
// department. An empty department selects Sales.
func NewAggregator(fallback domain.Department) *Aggregator {
	if fallback == "" {
		fallback = domain.DepartmentSales
	}
	return &Aggregator{fallback: fallback}
}

// Aggregate returns one work item per distinct customer address, in the
// order senders are first seen. The first message from a sender seeds its
// item; later messages from the same sender are ignored.
//
// Assignees come from the pool of employees allocated to the message's
// department, then the fallback pool, then the first employee on the roster.
// Within a pool employees are picked round-robin in roster order.
func (a *Aggregator) Aggregate(messages []domain.Message, employees []domain.Employee) []domain.ClientWorkItem {
	picker := newRoundRobin(employees)
	seen := make(map[string]bool)
	items := make([]domain.ClientWorkItem, 0)

	for i := range messages {
		m := &messages[i]
		if !m.IsCustomer() || m.SenderAddress == "" {
			continue
		}
		key := strings.ToLower(m.SenderAddress)
		if seen[key] {
			continue
		}
		seen[key] = true

		item := domain.ClientWorkItem{
			ClientEmail: m.SenderAddress,
			ClientName:  m.DisplayName,
			AssignedTo:  domain.UnassignedName,
			Department:  domain.DepartmentGeneral,
			WorkSummary: m.WorkSummary,
			LastContact: m.Timestamp,
		}

		if e := picker.pick(m.Department, a.fallback); e != nil {
			item.AssignedTo = e.Name
			item.AssigneeID = e.ID
			if e.IsAllocated() {
				item.Department = e.AllocatedDepartment
			}
		}
		items = append(items, item)
	}
	return items
}

// roundRobin hands out employees per department pool. Counters live for one run.
type roundRobin struct {
	employees []domain.Employee
	pools     map[domain.Department][]int
	next      map[domain.Department]int
}

func newRoundRobin(employees []domain.Employee) *roundRobin {
	rr := &roundRobin{
		employees: employees,
		pools:     make(map[domain.Department][]int),
		next:      make(map[domain.Department]int),
	}
	for i := range employees {
		if d := employees[i].AllocatedDepartment; d != "" {
			rr.pools[d] = append(rr.pools[d], i)
		}
	}
	return rr
}

func (rr *roundRobin) pick(dept, fallback domain.Department) *domain.Employee {
	for _, d := range []domain.Department{dept, fallback} {
		pool := rr.pools[d]
		if len(pool) == 0 {
			continue
		}
		idx := pool[rr.next[d]%len(pool)]
		rr.next[d]++
		return &rr.employees[idx]
	}
	if len(rr.employees) > 0 {
		return &rr.employees[0]
	}
	return nil
}

// Metrics summarises a batch of classified messages.
func Metrics(messages []domain.Message) domain.EngagementMetrics {
	m := domain.EngagementMetrics{
		Sentiment:   make(map[string]int),
		Departments: make(map[domain.Department]int),
	}
	clients := make(map[string]bool)

	for i := range messages {
		msg := &messages[i]
		m.TotalMessages++
		m.Sentiment[msg.Sentiment]++

		if msg.IsCustomer() {
			m.CustomerMessages++
			m.Departments[msg.Department]++
			if msg.SenderAddress != "" {
				clients[strings.ToLower(msg.SenderAddress)] = true
			}
		} else {
			m.TeamMessages++
		}

		if msg.Timestamp.IsZero() {
			continue
		}
		ts := msg.Timestamp
		if m.FirstContact == nil || ts.Before(*m.FirstContact) {
			m.FirstContact = &ts
		}
		if m.LastContact == nil || ts.After(*m.LastContact) {
			last := ts
			m.LastContact = &last
		}
	}
	m.UniqueClients = len(clients)
	return m.WithResponseRatio()
}
