package domain

// LeadScoreInput is everything the lead score is derived from.
type LeadScoreInput struct {
	CustomerCount     int     `json:"customer_count"`
	TeamCount         int     `json:"team_count"`
	EstimatedValueUSD float64 `json:"estimated_value_usd"`
	Industry          string  `json:"industry"`
	// PrimaryContact is the first customer's address, named in the summary.
	PrimaryContact string `json:"primary_contact,omitempty"`
}

// ScoreComponent is one weighted part of the lead score.
type ScoreComponent struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Points int    `json:"points"`
}

// RiskFactor is a weighted risk contribution, weight in percent.
type RiskFactor struct {
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

// LeadScoreReport is the structured output of lead scoring.
type LeadScoreReport struct {
	Score              int              `json:"score"`
	EngagementLevel    string           `json:"engagement_level"`
	ResponseQuality    string           `json:"response_quality"`
	Urgency            string           `json:"urgency"`
	UrgencyNote        string           `json:"urgency_note"`
	DealStage          string           `json:"deal_stage"`
	RiskFactors        []RiskFactor     `json:"risk_factors"`
	OverallRisk        string           `json:"overall_risk"`
	OverallRiskNote    string           `json:"overall_risk_note"`
	RecommendedActions []string         `json:"recommended_actions"`
	EstimatedValue     float64          `json:"estimated_value"`
	ValueTier          string           `json:"value_tier"`
	ROIPotential       string           `json:"roi_potential"`
	CloseProbability   int              `json:"close_probability"`
	ConversionOutlook  string           `json:"conversion_outlook"`
	NextReview         string           `json:"next_review"`
	Industry           string           `json:"industry"`
	SummaryText        string           `json:"summary_text"`
	Components         []ScoreComponent `json:"components"`
	Input              LeadScoreInput   `json:"input"`
}
