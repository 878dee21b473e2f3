package out

import (
	"context"
	"time"

	"crm_server/core/domain"
)

// ReportRecord is one archived lead report.
type ReportRecord struct {
	RunID       string                   `json:"run_id" bson:"run_id"`
	GeneratedAt time.Time                `json:"generated_at" bson:"generated_at"`
	Lead        domain.LeadScoreReport   `json:"lead" bson:"lead"`
	Metrics     domain.EngagementMetrics `json:"metrics" bson:"metrics"`
	Document    domain.ReportDocument    `json:"document" bson:"document"`
}

// ReportRepository archives composed lead reports.
type ReportRepository interface {
	SaveReport(ctx context.Context, record *ReportRecord) error
	// LatestReport returns nil, nil when nothing has been archived.
	LatestReport(ctx context.Context) (*ReportRecord, error)
}

// AssignmentGraph mirrors client to staff assignments into a graph store.
type AssignmentGraph interface {
	SyncClientWork(ctx context.Context, runID string, items []domain.ClientWorkItem) error
}

// Cache is a JSON key/value cache.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}
