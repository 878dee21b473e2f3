// Package classification turns raw correspondence into classified messages.
package classification

import (
	"strings"

	"crm_server/core/domain"
	"crm_server/core/service/lexicon"
)

// Classifier tags messages with a department and a work summary using
// keyword rules. It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	lex *lexicon.Lexicon
}

// NewClassifier creates a classifier. A nil lexicon selects the defaults.
func NewClassifier(lex *lexicon.Lexicon) *Classifier {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &Classifier{lex: lex}
}

// Classify derives a Message from a raw record. The raw record is not modified.
func (c *Classifier) Classify(raw domain.RawMessage) domain.Message {
	address, name := ParseSender(raw.Sender)
	text := strings.ToLower(raw.Body)

	sentiment := strings.TrimSpace(raw.Sentiment)
	if sentiment == "" {
		sentiment = domain.SentimentNeutral
	}

	return domain.Message{
		ExternalID:    raw.ExternalID,
		SenderAddress: address,
		DisplayName:   name,
		Subject:       raw.Subject,
		Body:          raw.Body,
		Timestamp:     raw.Timestamp,
		Role:          roleOf(raw.Role),
		Department:    c.lex.DepartmentFor(text),
		WorkSummary:   c.lex.SummaryFor(text),
		Sentiment:     sentiment,
	}
}

// ClassifyAll classifies every record, preserving order.
func (c *Classifier) ClassifyAll(raws []domain.RawMessage) []domain.Message {
	out := make([]domain.Message, 0, len(raws))
	for _, raw := range raws {
		out = append(out, c.Classify(raw))
	}
	return out
}

// roleOf trusts the upstream tag. Anything that is not internal counts as a customer.
func roleOf(r domain.Role) domain.Role {
	if r == domain.RoleInternal {
		return domain.RoleInternal
	}
	return domain.RoleCustomer
}

// ParseSender splits "Display Name <addr@domain>" into address and display name.
// A bare address is returned as is; the name then falls back to the local part.
func ParseSender(sender string) (address, name string) {
	sender = strings.TrimSpace(sender)

	address = sender
	if lt := strings.Index(sender, "<"); lt >= 0 {
		if gt := strings.Index(sender[lt+1:], ">"); gt >= 0 {
			address = strings.TrimSpace(sender[lt+1 : lt+1+gt])
			name = strings.TrimSpace(sender[:lt])
			name = strings.TrimSpace(strings.Trim(name, `"'`))
		}
	}

	if name == "" {
		name = localPart(address)
	}
	return address, name
}

func localPart(address string) string {
	if at := strings.Index(address, "@"); at >= 0 {
		return address[:at]
	}
	return address
}
