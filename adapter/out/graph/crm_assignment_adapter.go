package graph

import (
	"context"
	"fmt"
	"time"

	"crm_server/core/domain"
	"crm_server/core/port/out"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// AssignmentAdapter implements out.AssignmentGraph using Neo4j.
//
// Graph shape: (:Client {email})-[:ASSIGNED_TO {run_id, work_summary,
// department, last_contact}]->(:Employee {id}).
type AssignmentAdapter struct {
	driver neo4j.DriverWithContext
	dbName string
}

// NewAssignmentAdapter creates a new Neo4j assignment adapter.
func NewAssignmentAdapter(driver neo4j.DriverWithContext, dbName string) *AssignmentAdapter {
	return &AssignmentAdapter{driver: driver, dbName: dbName}
}

var _ out.AssignmentGraph = (*AssignmentAdapter)(nil)

// EnsureIndexes creates the uniqueness constraints the MERGE queries rely on.
func (a *AssignmentAdapter) EnsureIndexes(ctx context.Context) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT client_email_unique IF NOT EXISTS FOR (c:Client) REQUIRE c.email IS UNIQUE`,
		`CREATE CONSTRAINT employee_id_unique IF NOT EXISTS FOR (e:Employee) REQUIRE e.id IS UNIQUE`,
	}
	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	return nil
}

const syncQuery = `
	UNWIND $items AS item
	MERGE (c:Client {email: item.client_email})
	SET c.name = item.client_name,
		c.last_contact = item.last_contact,
		c.updated_at = timestamp()
	WITH c, item
	OPTIONAL MATCH (c)-[old:ASSIGNED_TO]->()
	DELETE old
	WITH c, item
	WHERE item.assignee_id <> ''
	MERGE (e:Employee {id: item.assignee_id})
	SET e.name = item.assigned_to,
		e.department = item.department
	MERGE (c)-[r:ASSIGNED_TO]->(e)
	SET r.run_id = $runID,
		r.work_summary = item.work_summary,
		r.department = item.department,
		r.last_contact = item.last_contact`

// SyncClientWork replaces each client's assignment edge with the one from
// this run. Unassigned clients keep their node and lose any old edge.
func (a *AssignmentAdapter) SyncClientWork(ctx context.Context, runID string, items []domain.ClientWorkItem) error {
	if len(items) == 0 {
		return nil
	}

	session := a.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: a.dbName,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	params := map[string]any{"runID": runID, "items": itemParams(items)}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, syncQuery, params)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to sync client work: %w", err)
	}
	return nil
}

// ClientsOf returns the client addresses currently assigned to an employee.
func (a *AssignmentAdapter) ClientsOf(ctx context.Context, employeeID string) ([]string, error) {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: a.dbName,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	query := `
		MATCH (c:Client)-[:ASSIGNED_TO]->(:Employee {id: $id})
		RETURN c.email AS email
		ORDER BY email`

	emails, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"id": employeeID})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		emails := make([]string, 0, len(records))
		for _, rec := range records {
			if email, ok := rec.Get("email"); ok {
				if s, ok := email.(string); ok {
					emails = append(emails, s)
				}
			}
		}
		return emails, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list clients of %s: %w", employeeID, err)
	}
	return emails.([]string), nil
}

func itemParams(items []domain.ClientWorkItem) []map[string]any {
	params := make([]map[string]any, len(items))
	for i, item := range items {
		params[i] = map[string]any{
			"client_email": item.ClientEmail,
			"client_name":  item.ClientName,
			"assigned_to":  item.AssignedTo,
			"assignee_id":  item.AssigneeID,
			"department":   string(item.Department),
			"work_summary": item.WorkSummary,
			"last_contact": item.LastContact.UTC().Format(time.RFC3339),
		}
	}
	return params
}
