// Package scoring computes the lead score and its narrative fields from
// message counts and deal context. Scoring is a pure function of its input.
package scoring

import (
	"fmt"
	"math"
	"strings"

	"crm_server/core/domain"
)

// Placeholder components. They stay constant until live signals for
// response quality, deal stage and buying signals are available.
const (
	ResponseQualityPoints = 25
	ResponseQualityLabel  = "Excellent"
	DealStagePoints       = 15
	DealStageLabel        = "Negotiation"
	SignalPoints          = 5
)

const (
	// DefaultCloseProbability applies when there are no messages at all.
	DefaultCloseProbability = 60
	maxCloseProbability     = 85

	defaultIndustry = "Technology"
	defaultContact  = "the prospect"
)

// Tier is the engagement bracket selected by the customer message count.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
)

// TierFor maps a customer message count to its tier: >10 high, >5 medium, >0 low.
func TierFor(customerCount int) Tier {
	switch {
	case customerCount > 10:
		return TierHigh
	case customerCount > 5:
		return TierMedium
	case customerCount > 0:
		return TierLow
	default:
		return TierNone
	}
}

type tierRule struct {
	engagementLabel  string
	engagementPoints int
	urgencyLabel     string
	urgencyPoints    int
	urgencyNote      string
	nextReview       string
	actions          []string
	engagementPhrase string
	interestClause   string
	followUp         string
}

var commonActions = []string{
	"Share relevant case studies and success stories",
	"Maintain consistent messaging across all touchpoints",
}

var tierRules = map[Tier]tierRule{
	TierHigh: {
		engagementLabel: "High", engagementPoints: 20,
		urgencyLabel: "High", urgencyPoints: 15,
		urgencyNote: "Immediate action recommended - hot lead opportunity.",
		nextReview:  "2-3 days",
		actions: []string{
			"Schedule a product demo or detailed walkthrough",
			"Prepare detailed pricing and contract information",
		},
		engagementPhrase: "shows strong engagement levels",
		interestClause:   "demonstrates active interest and ",
		followUp:         "immediate follow-up to close the deal",
	},
	TierMedium: {
		engagementLabel: "Medium", engagementPoints: 15,
		urgencyLabel: "Low", urgencyPoints: 5,
		urgencyNote: "Long sales cycle expected - focus on relationship building.",
		nextReview:  "1 week",
		actions: []string{
			"Establish a regular follow-up cadence",
			"Share industry insights and thought leadership",
		},
		engagementPhrase: "shows moderate engagement levels",
		interestClause:   "demonstrates active interest and ",
		followUp:         "consistent nurturing to maintain momentum",
	},
	TierLow: {
		engagementLabel: "Low", engagementPoints: 10,
		urgencyLabel: "Low", urgencyPoints: 5,
		urgencyNote: "Long sales cycle expected - focus on relationship building.",
		nextReview:  "1 week",
		actions: []string{
			"Establish a regular follow-up cadence",
			"Share industry insights and thought leadership",
		},
		engagementPhrase: "shows low engagement levels",
		followUp:         "consistent nurturing to maintain momentum",
	},
	TierNone: {
		engagementLabel: "Low", engagementPoints: 10,
		urgencyLabel: "Low", urgencyPoints: 5,
		urgencyNote: "No customer contact yet - qualify the opportunity first.",
		nextReview:  "1 week",
		actions: []string{
			"Open the conversation with a tailored introduction",
			"Qualify budget and decision makers before further investment",
		},
		engagementPhrase: "shows no recorded engagement",
		followUp:         "initial outreach to open the conversation",
	},
}

// Scorer computes lead score reports.
type Scorer struct{}

// NewScorer creates a scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score derives the report from counts and deal context. It never fails;
// negative counts are treated as zero.
func (s *Scorer) Score(in domain.LeadScoreInput) domain.LeadScoreReport {
	in.CustomerCount = max(in.CustomerCount, 0)
	in.TeamCount = max(in.TeamCount, 0)

	rule := tierRules[TierFor(in.CustomerCount)]
	industry := strings.TrimSpace(in.Industry)
	if industry == "" {
		industry = defaultIndustry
	}

	components := []domain.ScoreComponent{
		{Name: "engagement", Label: rule.engagementLabel, Points: rule.engagementPoints},
		{Name: "response_quality", Label: ResponseQualityLabel, Points: ResponseQualityPoints},
		{Name: "urgency", Label: rule.urgencyLabel, Points: rule.urgencyPoints},
		{Name: "deal_stage", Label: DealStageLabel, Points: DealStagePoints},
		{Name: "signals", Label: "Signals", Points: SignalPoints},
	}
	total := 0
	for _, c := range components {
		total += c.Points
	}

	closeProbability := CloseProbability(in.CustomerCount, in.TeamCount)
	valueTier, roi := valueTierFor(in.EstimatedValueUSD)

	report := domain.LeadScoreReport{
		Score:              min(max(total, 0), 100),
		EngagementLevel:    rule.engagementLabel,
		ResponseQuality:    ResponseQualityLabel,
		Urgency:            rule.urgencyLabel,
		UrgencyNote:        rule.urgencyNote,
		DealStage:          DealStageLabel,
		RiskFactors:        riskFactors(in.CustomerCount, rule.urgencyLabel),
		RecommendedActions: append(append([]string(nil), commonActions...), rule.actions...),
		EstimatedValue:     in.EstimatedValueUSD,
		ValueTier:          valueTier,
		ROIPotential:       roi,
		CloseProbability:   closeProbability,
		ConversionOutlook:  "moderate",
		NextReview:         rule.nextReview,
		Industry:           industry,
		Components:         components,
		Input:              in,
	}
	if closeProbability > 70 {
		report.ConversionOutlook = "strong"
	}
	report.OverallRisk, report.OverallRiskNote = overallRisk(in.CustomerCount)
	contact := strings.TrimSpace(in.PrimaryContact)
	if contact == "" {
		contact = defaultContact
	}
	report.SummaryText = fmt.Sprintf(
		"This %s opportunity with %s %s in the %s sector. The lead %srequires %s.",
		valueTier, contact, rule.engagementPhrase, industry, rule.interestClause, rule.followUp,
	)
	return report
}

// CloseProbability is min(85, round(team/(customer+1)*10)), or 60 when
// there are no messages at all.
func CloseProbability(customerCount, teamCount int) int {
	if customerCount+teamCount == 0 {
		return DefaultCloseProbability
	}
	p := int(math.Round(float64(teamCount) / float64(customerCount+1) * 10))
	return min(maxCloseProbability, p)
}

func riskFactors(customerCount int, urgency string) []domain.RiskFactor {
	factors := make([]domain.RiskFactor, 0, 2)
	if customerCount == 1 {
		factors = append(factors, domain.RiskFactor{Description: "Single touchpoint with no follow-up", Weight: 40})
	} else {
		factors = append(factors, domain.RiskFactor{Description: "Multiple touchpoints indicating healthy engagement", Weight: 10})
	}
	if urgency == "High" {
		factors = append(factors, domain.RiskFactor{Description: "High urgency level accelerates the timeline", Weight: 5})
	} else {
		factors = append(factors, domain.RiskFactor{Description: "Low urgency may delay the decision-making process", Weight: 25})
	}
	return factors
}

func overallRisk(customerCount int) (label, note string) {
	if customerCount > 5 {
		return "Low", "showing healthy progression"
	}
	return "Medium", "requiring close monitoring"
}

func valueTierFor(value float64) (tier, roi string) {
	switch {
	case value > 100000:
		return "high-value", "High ROI"
	case value > 50000:
		return "moderate", "Medium ROI"
	default:
		return "standard", "Standard ROI"
	}
}
