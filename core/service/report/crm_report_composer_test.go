package report

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"crm_server/core/domain"
	"crm_server/core/service/scoring"
)

func field(t *testing.T, s domain.ReportSection, label string) string {
	t.Helper()
	for _, f := range s.Fields {
		if f.Label == label {
			return f.Value
		}
	}
	t.Fatalf("section %q has no field %q", s.Title, label)
	return ""
}

func TestCompose(t *testing.T) {
	lead := scoring.NewScorer().Score(domain.LeadScoreInput{
		CustomerCount: 12, TeamCount: 10, EstimatedValueUSD: 150000, Industry: "Tech",
	})
	last := time.Date(2024, 6, 2, 15, 4, 5, 0, time.UTC)
	metrics := domain.EngagementMetrics{CustomerMessages: 12, TeamMessages: 10, TotalMessages: 22, UniqueClients: 3, LastContact: &last}
	generated := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	doc := NewComposer().Compose(lead, metrics, domain.ReportContext{
		ClientName:  "Jane Doe",
		ClientEmail: "jane@acme.com",
		GeneratedAt: generated,
	})

	if doc.Title != DocumentTitle || !doc.GeneratedAt.Equal(generated) {
		t.Errorf("header = %q %v", doc.Title, doc.GeneratedAt)
	}

	wantTitles := []string{
		SectionProject, SectionLeadScore, SectionUrgency, SectionRisk,
		SectionActions, SectionOpportunity, SectionEngagement, SectionSummary,
	}
	var gotTitles []string
	for _, s := range doc.Sections {
		gotTitles = append(gotTitles, s.Title)
	}
	if !reflect.DeepEqual(gotTitles, wantTitles) {
		t.Fatalf("sections = %v, want %v", gotTitles, wantTitles)
	}

	project, _ := doc.Section(SectionProject)
	if got := field(t, project, "Project Name"); got != DefaultProjectName {
		t.Errorf("Project Name = %q, want default", got)
	}
	if got := field(t, project, "Primary Contact"); got != "Jane Doe" {
		t.Errorf("Primary Contact = %q", got)
	}

	score, _ := doc.Section(SectionLeadScore)
	if score.Body != "80/100" {
		t.Errorf("score body = %q, want 80/100", score.Body)
	}
	if got := field(t, score, "Engagement Level"); got != "High (20 pts)" {
		t.Errorf("Engagement Level = %q", got)
	}

	risk, _ := doc.Section(SectionRisk)
	if got := field(t, risk, "Overall Risk"); got != "Low, showing healthy progression" {
		t.Errorf("Overall Risk = %q", got)
	}

	opp, _ := doc.Section(SectionOpportunity)
	if got := field(t, opp, "Estimated Value"); got != "$150,000" {
		t.Errorf("Estimated Value = %q, want $150,000", got)
	}
	if got := field(t, opp, "Close Probability"); got != "8%" {
		t.Errorf("Close Probability = %q, want 8%%", got)
	}

	actions, _ := doc.Section(SectionActions)
	if len(actions.Fields) != len(lead.RecommendedActions) {
		t.Errorf("actions = %d, want %d", len(actions.Fields), len(lead.RecommendedActions))
	}

	engagement, _ := doc.Section(SectionEngagement)
	if got := field(t, engagement, "Last Contact"); got != "2024-06-02T15:04:05Z" {
		t.Errorf("Last Contact = %q", got)
	}
	if got := field(t, engagement, "Response Ratio"); got != "0.8x" {
		t.Errorf("Response Ratio = %q, want 0.8x", got)
	}
	if got := field(t, engagement, "Team Engagement"); got != "moderate" {
		t.Errorf("Team Engagement = %q, want moderate", got)
	}
	if !strings.Contains(engagement.Body, "total of 22 interactions") || !strings.Contains(engagement.Body, "0.8x") {
		t.Errorf("engagement body = %q", engagement.Body)
	}

	summary, _ := doc.Section(SectionSummary)
	if summary.Body != lead.SummaryText {
		t.Errorf("summary = %q, want lead summary", summary.Body)
	}
}

func TestComposeIsPure(t *testing.T) {
	lead := scoring.NewScorer().Score(domain.LeadScoreInput{})
	rc := domain.ReportContext{ProjectName: "Acme Renewal", GeneratedAt: time.Unix(0, 0)}
	c := NewComposer()
	a := c.Compose(lead, domain.EngagementMetrics{}, rc)
	b := c.Compose(lead, domain.EngagementMetrics{}, rc)
	if !reflect.DeepEqual(a, b) {
		t.Error("Compose is not reproducible")
	}
	project, _ := a.Section(SectionProject)
	if project.Fields[0].Value != "Acme Renewal" {
		t.Errorf("Project Name = %q", project.Fields[0].Value)
	}
	engagement, _ := a.Section(SectionEngagement)
	if got := field(t, engagement, "Response Ratio"); got != "N/A" {
		t.Errorf("Response Ratio = %q, want N/A", got)
	}
}
