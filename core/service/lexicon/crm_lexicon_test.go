package lexicon

import (
	"os"
	"path/filepath"
	"testing"

	"crm_server/core/domain"
)

func TestDefaultIsValid(t *testing.T) {
	lex := Default()
	if err := lex.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
	for _, p := range lex.Profiles {
		if got := p.MaxScore(); got != 100 {
			t.Errorf("%s MaxScore() = %v, want 100", p.Department, got)
		}
	}
}

func TestDepartmentFor(t *testing.T) {
	lex := Default()

	tests := []struct {
		name string
		text string
		want domain.Department
	}{
		{"support keyword", "i need help with my order", domain.DepartmentSupport},
		{"marketing keyword", "about the spring campaign", domain.DepartmentMarketing},
		{"no keyword falls back to sales", "can we schedule a demo next week?", domain.DepartmentSales},
		{"support wins over marketing", "campaign results look odd, need support", domain.DepartmentSupport},
		{"support wins regardless of text order", "support ticket about the campaign", domain.DepartmentSupport},
		{"empty text", "", domain.DepartmentSales},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lex.DepartmentFor(tt.text); got != tt.want {
				t.Errorf("DepartmentFor(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSummaryFor(t *testing.T) {
	lex := Default()

	tests := []struct {
		text string
		want string
	}{
		{"let's set up a meeting about the demo", "Schedule meeting"},
		{"can we schedule a demo next week?", "Product demo"},
		{"please send a quote", "Pricing discussion"},
		{"what is the price?", "Pricing discussion"},
		{"there is an issue with login", "Customer support"},
		{"some feedback on the app", "Collect feedback"},
		{"is the course still open?", "Job/Course inquiry"},
		{"hello there", "General inquiry"},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.text, func(t *testing.T) {
			if got := lex.SummaryFor(tt.text); got != tt.want {
				t.Errorf("SummaryFor(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
}

func TestSentimentFor(t *testing.T) {
	lex := Default()

	tests := []struct {
		text string
		want string
	}{
		{"thanks, that was great", domain.SentimentPositive},
		{"i want a refund", domain.SentimentNegative},
		{"thanks, but i want to cancel", domain.SentimentNegative},
		{"see attached", domain.SentimentNeutral},
	}

	for _, tt := range tests {
		if got := lex.SentimentFor(tt.text); got != tt.want {
			t.Errorf("SentimentFor(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestParseOverridesNamedTablesOnly(t *testing.T) {
	data := []byte(`
departments:
  - department: Marketing
    keywords: [Newsletter]
default_summary: Other
`)
	lex, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(lex.Departments) != 1 || lex.Departments[0].Keywords[0] != "newsletter" {
		t.Errorf("Departments = %+v, want single lower-cased newsletter rule", lex.Departments)
	}
	if lex.DefaultSummary != "Other" {
		t.Errorf("DefaultSummary = %q, want Other", lex.DefaultSummary)
	}
	if len(lex.Summaries) != len(Default().Summaries) {
		t.Errorf("Summaries len = %d, want defaults kept", len(lex.Summaries))
	}
	if got := lex.DepartmentFor("our newsletter"); got != domain.DepartmentMarketing {
		t.Errorf("DepartmentFor = %q, want Marketing", got)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown department", "departments:\n  - department: Legal\n    keywords: [law]\n"},
		{"empty keywords", "departments:\n  - department: Support\n    keywords: []\n"},
		{"negative weight", "profiles:\n  - department: Sales\n    keywords: [sales]\n    skill_weight: -1\n    experience_weight: 1\n    performance_weight: 1\n"},
		{"duplicate profile", "profiles:\n  - {department: Sales, keywords: [a], skill_weight: 1}\n  - {department: Sales, keywords: [b], skill_weight: 1}\n"},
		{"bad yaml", "departments: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Errorf("Parse() error = nil, want error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	lex, err := Load("")
	if err != nil || lex == nil {
		t.Fatalf("Load(\"\") = %v, %v; want defaults", lex, err)
	}

	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	if err := os.WriteFile(path, []byte("default_summary: Misc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	lex, err = Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if lex.DefaultSummary != "Misc" {
		t.Errorf("DefaultSummary = %q, want Misc", lex.DefaultSummary)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) error = nil, want error")
	}
}
