package classification

import (
	"testing"
	"time"

	"crm_server/core/domain"
	"crm_server/core/service/lexicon"
)

func TestClassifyDemoRequest(t *testing.T) {
	c := NewClassifier(nil)
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	raw := domain.RawMessage{
		Sender:    "Jane Doe <jane@acme.com>",
		Body:      "Can we schedule a demo next week?",
		Timestamp: ts,
		Role:      domain.RoleCustomer,
	}
	got := c.Classify(raw)

	if got.Department != domain.DepartmentSales {
		t.Errorf("Department = %q, want Sales", got.Department)
	}
	if got.WorkSummary != "Product demo" {
		t.Errorf("WorkSummary = %q, want Product demo", got.WorkSummary)
	}
	if got.SenderAddress != "jane@acme.com" {
		t.Errorf("SenderAddress = %q, want jane@acme.com", got.SenderAddress)
	}
	if got.DisplayName != "Jane Doe" {
		t.Errorf("DisplayName = %q, want Jane Doe", got.DisplayName)
	}
	if got.Sentiment != domain.SentimentNeutral {
		t.Errorf("Sentiment = %q, want Neutral", got.Sentiment)
	}
	if !got.Timestamp.Equal(ts) || got.Role != domain.RoleCustomer {
		t.Errorf("Timestamp/Role not propagated: %v %q", got.Timestamp, got.Role)
	}
	if raw.Sender != "Jane Doe <jane@acme.com>" {
		t.Errorf("raw message was modified: %+v", raw)
	}
}

func TestClassifyDepartmentPriority(t *testing.T) {
	c := NewClassifier(nil)

	bodies := []string{
		"Need support with the campaign",
		"The campaign needs support",
		"PROMOTION went wrong, please HELP",
		"marketing issue",
	}
	for _, body := range bodies {
		got := c.Classify(domain.RawMessage{Sender: "a@b.com", Body: body, Role: domain.RoleCustomer})
		if got.Department != domain.DepartmentSupport {
			t.Errorf("Classify(%q).Department = %q, want Support", body, got.Department)
		}
	}
}

func TestClassifyIsTotal(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		name string
		raw  domain.RawMessage
		role domain.Role
	}{
		{"empty record", domain.RawMessage{}, domain.RoleCustomer},
		{"internal role kept", domain.RawMessage{Sender: "me@corp.com", Role: domain.RoleInternal}, domain.RoleInternal},
		{"unknown role becomes customer", domain.RawMessage{Sender: "x@y.z", Role: "vendor"}, domain.RoleCustomer},
		{"unbalanced bracket", domain.RawMessage{Sender: "Bob <bob@x.com", Body: "???"}, domain.RoleCustomer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.raw)
			if got.Role != tt.role {
				t.Errorf("Role = %q, want %q", got.Role, tt.role)
			}
			if !domain.IsKnownDepartment(got.Department) {
				t.Errorf("Department = %q, want a known department", got.Department)
			}
			if got.WorkSummary == "" || got.Sentiment == "" {
				t.Errorf("WorkSummary/Sentiment must be defined, got %q/%q", got.WorkSummary, got.Sentiment)
			}
		})
	}
}

func TestClassifyKeepsUpstreamSentiment(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(domain.RawMessage{Sender: "a@b.com", Body: "thanks", Sentiment: domain.SentimentNegative})
	if got.Sentiment != domain.SentimentNegative {
		t.Errorf("Sentiment = %q, want upstream Negative", got.Sentiment)
	}
}

func TestClassifyUsesCustomLexicon(t *testing.T) {
	lex, err := lexicon.Parse([]byte("departments:\n  - department: Account Management\n    keywords: [renewal]\n"))
	if err != nil {
		t.Fatal(err)
	}
	c := NewClassifier(lex)
	got := c.Classify(domain.RawMessage{Sender: "a@b.com", Body: "About our renewal"})
	if got.Department != domain.DepartmentAccountManagement {
		t.Errorf("Department = %q, want Account Management", got.Department)
	}
}

func TestParseSender(t *testing.T) {
	tests := []struct {
		sender      string
		wantAddress string
		wantName    string
	}{
		{"Jane Doe <jane@acme.com>", "jane@acme.com", "Jane Doe"},
		{`"Doe, Jane" <jane@acme.com>`, "jane@acme.com", "Doe, Jane"},
		{"<jane@acme.com>", "jane@acme.com", "jane"},
		{"jane@acme.com", "jane@acme.com", "jane"},
		{"  bob@example.org  ", "bob@example.org", "bob"},
		{"no-at-sign", "no-at-sign", "no-at-sign"},
		{"", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.sender, func(t *testing.T) {
			address, name := ParseSender(tt.sender)
			if address != tt.wantAddress || name != tt.wantName {
				t.Errorf("ParseSender(%q) = (%q, %q), want (%q, %q)",
					tt.sender, address, name, tt.wantAddress, tt.wantName)
			}
		})
	}
}

func TestClassifyAllPreservesOrder(t *testing.T) {
	c := NewClassifier(nil)
	raws := []domain.RawMessage{
		{Sender: "a@x.com", Body: "help"},
		{Sender: "b@x.com", Body: "campaign"},
		{Sender: "c@x.com", Body: "hello"},
	}
	got := c.ClassifyAll(raws)
	want := []domain.Department{domain.DepartmentSupport, domain.DepartmentMarketing, domain.DepartmentSales}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Department != want[i] {
			t.Errorf("[%d] Department = %q, want %q", i, got[i].Department, want[i])
		}
	}
}
