package domain

import (
	"math"
	"time"
)

// ClientWorkItem records who handles a customer and what the work is about.
type ClientWorkItem struct {
	ClientEmail string     `json:"client_email"`
	ClientName  string     `json:"client_name"`
	AssignedTo  string     `json:"assigned_to"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	Department  Department `json:"department"`
	WorkSummary string     `json:"work_summary"`
	LastContact time.Time  `json:"last_contact"`
}

// IsAssigned reports whether a staff member was resolved for the item.
func (c *ClientWorkItem) IsAssigned() bool {
	return c.AssigneeID != ""
}

// EngagementMetrics summarises a batch of classified messages.
type EngagementMetrics struct {
	CustomerMessages int                `json:"customer_messages"`
	TeamMessages     int                `json:"team_messages"`
	TotalMessages    int                `json:"total_messages"`
	UniqueClients    int                `json:"unique_clients"`
	Sentiment        map[string]int     `json:"sentiment"`
	Departments      map[Department]int `json:"departments"`
	FirstContact     *time.Time         `json:"first_contact,omitempty"`
	LastContact      *time.Time         `json:"last_contact,omitempty"`

	// ResponseRatio is team messages per customer message, one decimal;
	// nil without customer messages.
	ResponseRatio  *float64 `json:"response_ratio"`
	TeamEngagement string   `json:"team_engagement"`
}

// Team engagement labels.
const (
	TeamEngagementStrong   = "strong"
	TeamEngagementModerate = "moderate"
)

// WithResponseRatio returns m with ResponseRatio and TeamEngagement derived
// from the message counts. Engagement is strong when the team sent more
// messages than the customers did.
func (m EngagementMetrics) WithResponseRatio() EngagementMetrics {
	m.ResponseRatio = nil
	m.TeamEngagement = TeamEngagementModerate
	if m.CustomerMessages <= 0 {
		return m
	}
	ratio := float64(m.TeamMessages) / float64(m.CustomerMessages)
	rounded := math.Round(ratio*10) / 10
	m.ResponseRatio = &rounded
	if ratio > 1 {
		m.TeamEngagement = TeamEngagementStrong
	}
	return m
}
