// Package report composes lead score reports into section-based documents.
// Documents carry data only; rendering is left to the consumer.
package report

import (
	"fmt"
	"strconv"
	"time"

	"crm_server/core/domain"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Document and section titles.
const (
	DocumentTitle = "Lead Analysis Report"

	SectionProject     = "Project"
	SectionLeadScore   = "Lead Score"
	SectionUrgency     = "Customer Urgency"
	SectionRisk        = "Risk Factors"
	SectionActions     = "Recommended Actions"
	SectionOpportunity = "Business Opportunity"
	SectionEngagement  = "Engagement Metrics"
	SectionSummary     = "Summary"
)

// DefaultProjectName is used when the caller supplies no project name.
const DefaultProjectName = "Mailbox Auto-Sync Lead"

var componentTitles = map[string]string{
	"engagement":       "Engagement Level",
	"response_quality": "Response Quality",
	"urgency":          "Urgency",
	"deal_stage":       "Deal Stage",
	"signals":          "Signals",
}

// Composer builds report documents.
type Composer struct {
	printer *message.Printer
}

// NewComposer creates a composer that formats numbers for English readers.
func NewComposer() *Composer {
	return &Composer{printer: message.NewPrinter(language.English)}
}

// Compose builds the report document. GeneratedAt comes from rc, so the
// same inputs always yield the same document.
func (c *Composer) Compose(lead domain.LeadScoreReport, metrics domain.EngagementMetrics, rc domain.ReportContext) domain.ReportDocument {
	project := rc.ProjectName
	if project == "" {
		project = DefaultProjectName
	}

	return domain.ReportDocument{
		Title:       DocumentTitle,
		GeneratedAt: rc.GeneratedAt,
		Sections: []domain.ReportSection{
			c.projectSection(project, lead, rc),
			c.scoreSection(lead),
			{
				Title: SectionUrgency,
				Body:  lead.UrgencyNote,
				Fields: []domain.ReportField{
					{Label: "Urgency", Value: lead.Urgency},
					{Label: "Next Review", Value: lead.NextReview},
				},
			},
			c.riskSection(lead),
			c.actionsSection(lead),
			c.opportunitySection(lead),
			c.engagementSection(metrics),
			{Title: SectionSummary, Body: lead.SummaryText},
		},
	}
}

func (c *Composer) projectSection(project string, lead domain.LeadScoreReport, rc domain.ReportContext) domain.ReportSection {
	fields := []domain.ReportField{
		{Label: "Project Name", Value: project},
		{Label: "Industry", Value: lead.Industry},
	}
	if rc.ClientName != "" {
		fields = append(fields, domain.ReportField{Label: "Primary Contact", Value: rc.ClientName})
	}
	if rc.ClientEmail != "" {
		fields = append(fields, domain.ReportField{Label: "Contact Email", Value: rc.ClientEmail})
	}
	if !rc.GeneratedAt.IsZero() {
		fields = append(fields, domain.ReportField{Label: "Generated", Value: rc.GeneratedAt.UTC().Format(time.RFC3339)})
	}
	return domain.ReportSection{Title: SectionProject, Fields: fields}
}

func (c *Composer) scoreSection(lead domain.LeadScoreReport) domain.ReportSection {
	fields := make([]domain.ReportField, 0, len(lead.Components))
	for _, comp := range lead.Components {
		title, ok := componentTitles[comp.Name]
		if !ok {
			title = comp.Name
		}
		fields = append(fields, domain.ReportField{
			Label: title,
			Value: fmt.Sprintf("%s (%d pts)", comp.Label, comp.Points),
		})
	}
	return domain.ReportSection{
		Title:  SectionLeadScore,
		Body:   fmt.Sprintf("%d/100", lead.Score),
		Fields: fields,
	}
}

func (c *Composer) riskSection(lead domain.LeadScoreReport) domain.ReportSection {
	fields := make([]domain.ReportField, 0, len(lead.RiskFactors)+1)
	for _, f := range lead.RiskFactors {
		fields = append(fields, domain.ReportField{Label: f.Description, Value: fmt.Sprintf("%d%%", f.Weight)})
	}
	fields = append(fields, domain.ReportField{
		Label: "Overall Risk",
		Value: fmt.Sprintf("%s, %s", lead.OverallRisk, lead.OverallRiskNote),
	})
	return domain.ReportSection{Title: SectionRisk, Fields: fields}
}

func (c *Composer) actionsSection(lead domain.LeadScoreReport) domain.ReportSection {
	fields := make([]domain.ReportField, 0, len(lead.RecommendedActions))
	for i, a := range lead.RecommendedActions {
		fields = append(fields, domain.ReportField{Label: strconv.Itoa(i + 1), Value: a})
	}
	return domain.ReportSection{Title: SectionActions, Fields: fields}
}

func (c *Composer) opportunitySection(lead domain.LeadScoreReport) domain.ReportSection {
	return domain.ReportSection{
		Title: SectionOpportunity,
		Body: fmt.Sprintf("Conversion outlook is %s with a %d%% close probability.",
			lead.ConversionOutlook, lead.CloseProbability),
		Fields: []domain.ReportField{
			{Label: "Estimated Value", Value: c.printer.Sprintf("$%.0f", lead.EstimatedValue)},
			{Label: "Value Tier", Value: lead.ValueTier},
			{Label: "ROI Potential", Value: lead.ROIPotential},
			{Label: "Close Probability", Value: fmt.Sprintf("%d%%", lead.CloseProbability)},
		},
	}
}

func (c *Composer) engagementSection(m domain.EngagementMetrics) domain.ReportSection {
	m = m.WithResponseRatio()
	ratio := "N/A"
	if m.ResponseRatio != nil {
		ratio = strconv.FormatFloat(*m.ResponseRatio, 'f', 1, 64) + "x"
	}
	body := fmt.Sprintf(
		"The interaction analysis shows a total of %d interactions between the customer and team. "+
			"Customer has sent %d messages while the team has provided %d responses, "+
			"resulting in a response ratio of %s, indicating %s team engagement.",
		m.CustomerMessages+m.TeamMessages, m.CustomerMessages, m.TeamMessages, ratio, m.TeamEngagement,
	)
	fields := []domain.ReportField{
		{Label: "Customer Messages", Value: strconv.Itoa(m.CustomerMessages)},
		{Label: "Team Messages", Value: strconv.Itoa(m.TeamMessages)},
		{Label: "Total Messages", Value: strconv.Itoa(m.TotalMessages)},
		{Label: "Unique Clients", Value: strconv.Itoa(m.UniqueClients)},
		{Label: "Response Ratio", Value: ratio},
		{Label: "Team Engagement", Value: m.TeamEngagement},
	}
	if m.LastContact != nil {
		fields = append(fields, domain.ReportField{Label: "Last Contact", Value: m.LastContact.UTC().Format(time.RFC3339)})
	}
	return domain.ReportSection{Title: SectionEngagement, Body: body, Fields: fields}
}
