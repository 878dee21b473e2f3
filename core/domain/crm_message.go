package domain

import "time"

// Role tells whether a message came from an external correspondent or from staff.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleInternal Role = "internal"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleInternal
}

// Sentiment labels carried on messages. Tagging happens at ingestion.
const (
	SentimentPositive = "Positive"
	SentimentNeutral  = "Neutral"
	SentimentNegative = "Negative"
)

// RawMessage is a message as handed over by an ingestion source.
type RawMessage struct {
	ExternalID string    `json:"id,omitempty"`
	Sender     string    `json:"email"`
	Subject    string    `json:"subject,omitempty"`
	Body       string    `json:"body"`
	Timestamp  time.Time `json:"timestamp"`
	Role       Role      `json:"role"`
	Sentiment  string    `json:"sentiment,omitempty"`
}

// Message is a classified message. It is never mutated once produced.
type Message struct {
	ExternalID    string     `json:"external_id,omitempty"`
	SenderAddress string     `json:"sender_address"`
	DisplayName   string     `json:"display_name"`
	Subject       string     `json:"subject,omitempty"`
	Body          string     `json:"body"`
	Timestamp     time.Time  `json:"timestamp"`
	Role          Role       `json:"role"`
	Department    Department `json:"department"`
	WorkSummary   string     `json:"work_summary"`
	Sentiment     string     `json:"sentiment"`
}

// IsCustomer reports whether the message came from a customer.
func (m *Message) IsCustomer() bool {
	return m.Role == RoleCustomer
}
