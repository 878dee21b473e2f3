// Package lexicon holds the keyword tables used to classify correspondence
// and to profile staff. Tables are plain data; they can be replaced from a
// YAML file without touching the classification code.
package lexicon

import (
	"fmt"
	"os"
	"strings"

	"crm_server/core/domain"

	"gopkg.in/yaml.v3"
)

// DepartmentRule routes a message to a department when any keyword matches.
type DepartmentRule struct {
	Department domain.Department `yaml:"department" json:"department"`
	Keywords   []string          `yaml:"keywords" json:"keywords"`
}

// SummaryRule labels the work a message asks for.
type SummaryRule struct {
	Label    string   `yaml:"label" json:"label"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// SentimentRule tags a message body with a sentiment.
type SentimentRule struct {
	Sentiment string   `yaml:"sentiment" json:"sentiment"`
	Keywords  []string `yaml:"keywords" json:"keywords"`
}

// SkillProfile describes what a department rewards when allocating staff.
// The three weights are the points available for skills, experience and
// performance respectively.
type SkillProfile struct {
	Department        domain.Department `yaml:"department" json:"department"`
	Keywords          []string          `yaml:"keywords" json:"keywords"`
	SkillWeight       float64           `yaml:"skill_weight" json:"skill_weight"`
	ExperienceWeight  float64           `yaml:"experience_weight" json:"experience_weight"`
	PerformanceWeight float64           `yaml:"performance_weight" json:"performance_weight"`
}

// MaxScore is the highest score an employee can reach against the profile.
func (p *SkillProfile) MaxScore() float64 {
	return p.SkillWeight + p.ExperienceWeight + p.PerformanceWeight
}

// Lexicon is the full set of keyword tables. Rules are evaluated in slice
// order; the first matching rule wins.
type Lexicon struct {
	Departments       []DepartmentRule  `yaml:"departments" json:"departments"`
	DefaultDepartment domain.Department `yaml:"default_department" json:"default_department"`
	Summaries         []SummaryRule     `yaml:"summaries" json:"summaries"`
	DefaultSummary    string            `yaml:"default_summary" json:"default_summary"`
	Sentiments        []SentimentRule   `yaml:"sentiments" json:"sentiments"`
	DefaultSentiment  string            `yaml:"default_sentiment" json:"default_sentiment"`
	Profiles          []SkillProfile    `yaml:"profiles" json:"profiles"`
}

// Default returns the built-in tables.
func Default() *Lexicon {
	return &Lexicon{
		Departments: []DepartmentRule{
			{Department: domain.DepartmentSupport, Keywords: []string{"support", "help", "issue"}},
			{Department: domain.DepartmentMarketing, Keywords: []string{"marketing", "campaign", "promotion"}},
		},
		DefaultDepartment: domain.DepartmentSales,
		Summaries: []SummaryRule{
			{Label: "Schedule meeting", Keywords: []string{"meeting"}},
			{Label: "Product demo", Keywords: []string{"demo"}},
			{Label: "Pricing discussion", Keywords: []string{"quote", "price"}},
			{Label: "Customer support", Keywords: []string{"support", "issue"}},
			{Label: "Collect feedback", Keywords: []string{"feedback"}},
			{Label: "Job/Course inquiry", Keywords: []string{"course", "learning", "job"}},
		},
		DefaultSummary: "General inquiry",
		Sentiments: []SentimentRule{
			{Sentiment: domain.SentimentNegative, Keywords: []string{"unhappy", "disappointed", "angry", "problem", "complaint", "cancel", "refund"}},
			{Sentiment: domain.SentimentPositive, Keywords: []string{"thanks", "thank you", "great", "excellent", "happy", "love", "appreciate"}},
		},
		DefaultSentiment: domain.SentimentNeutral,
		Profiles: []SkillProfile{
			{
				Department:        domain.DepartmentSales,
				Keywords:          []string{"negotiation", "communication", "sales", "closing", "crm", "relationship", "prospecting"},
				SkillWeight:       60,
				ExperienceWeight:  25,
				PerformanceWeight: 15,
			},
			{
				Department:        domain.DepartmentSupport,
				Keywords:          []string{"troubleshooting", "technical", "customer service", "support", "debugging", "problem solving", "ticketing"},
				SkillWeight:       60,
				ExperienceWeight:  20,
				PerformanceWeight: 20,
			},
			{
				Department:        domain.DepartmentMarketing,
				Keywords:          []string{"content", "analytics", "seo", "social media", "campaign", "marketing", "copywriting"},
				SkillWeight:       60,
				ExperienceWeight:  15,
				PerformanceWeight: 25,
			},
			{
				Department:        domain.DepartmentAccountManagement,
				Keywords:          []string{"account management", "retention", "client relations", "upselling", "onboarding", "renewals"},
				SkillWeight:       50,
				ExperienceWeight:  35,
				PerformanceWeight: 15,
			},
		},
	}
}

// Load reads a YAML lexicon from path. Tables present in the file replace
// the built-in ones; absent tables keep their defaults. An empty path
// returns the defaults.
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML lexicon data over the defaults and validates the result.
func Parse(data []byte) (*Lexicon, error) {
	lex := Default()
	if err := yaml.Unmarshal(data, lex); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	lex.normalize()
	if err := lex.Validate(); err != nil {
		return nil, err
	}
	return lex, nil
}

// Validate checks that every table is usable.
func (l *Lexicon) Validate() error {
	if !domain.IsKnownDepartment(l.DefaultDepartment) {
		return fmt.Errorf("lexicon: unknown default department %q", l.DefaultDepartment)
	}
	for i, r := range l.Departments {
		if !domain.IsKnownDepartment(r.Department) {
			return fmt.Errorf("lexicon: departments[%d]: unknown department %q", i, r.Department)
		}
		if len(r.Keywords) == 0 {
			return fmt.Errorf("lexicon: departments[%d]: no keywords", i)
		}
	}
	if l.DefaultSummary == "" {
		return fmt.Errorf("lexicon: default summary is empty")
	}
	for i, r := range l.Summaries {
		if r.Label == "" || len(r.Keywords) == 0 {
			return fmt.Errorf("lexicon: summaries[%d]: label and keywords are required", i)
		}
	}
	if len(l.Profiles) == 0 {
		return fmt.Errorf("lexicon: no skill profiles")
	}
	seen := make(map[domain.Department]bool, len(l.Profiles))
	for i, p := range l.Profiles {
		if !domain.IsKnownDepartment(p.Department) {
			return fmt.Errorf("lexicon: profiles[%d]: unknown department %q", i, p.Department)
		}
		if seen[p.Department] {
			return fmt.Errorf("lexicon: profiles[%d]: duplicate department %q", i, p.Department)
		}
		seen[p.Department] = true
		if p.SkillWeight < 0 || p.ExperienceWeight < 0 || p.PerformanceWeight < 0 || p.MaxScore() <= 0 {
			return fmt.Errorf("lexicon: profiles[%d]: weights must be non-negative with a positive sum", i)
		}
	}
	return nil
}

// normalize lower-cases every keyword so matching can run on lower-cased text.
func (l *Lexicon) normalize() {
	for i := range l.Departments {
		l.Departments[i].Keywords = lowerAll(l.Departments[i].Keywords)
	}
	for i := range l.Summaries {
		l.Summaries[i].Keywords = lowerAll(l.Summaries[i].Keywords)
	}
	for i := range l.Sentiments {
		l.Sentiments[i].Keywords = lowerAll(l.Sentiments[i].Keywords)
	}
	for i := range l.Profiles {
		l.Profiles[i].Keywords = lowerAll(l.Profiles[i].Keywords)
	}
	if l.DefaultSentiment == "" {
		l.DefaultSentiment = domain.SentimentNeutral
	}
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// ContainsAny reports whether text contains any keyword. text must already be lower-cased.
func ContainsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// DepartmentFor returns the department of the first matching rule.
func (l *Lexicon) DepartmentFor(lowerText string) domain.Department {
	for _, r := range l.Departments {
		if ContainsAny(lowerText, r.Keywords) {
			return r.Department
		}
	}
	return l.DefaultDepartment
}

// SummaryFor returns the label of the first matching summary rule.
func (l *Lexicon) SummaryFor(lowerText string) string {
	for _, r := range l.Summaries {
		if ContainsAny(lowerText, r.Keywords) {
			return r.Label
		}
	}
	return l.DefaultSummary
}

// SentimentFor returns the sentiment of the first matching rule.
func (l *Lexicon) SentimentFor(lowerText string) string {
	for _, r := range l.Sentiments {
		if ContainsAny(lowerText, r.Keywords) {
			return r.Sentiment
		}
	}
	return l.DefaultSentiment
}

// Profile returns the skill profile for a department.
func (l *Lexicon) Profile(d domain.Department) (SkillProfile, bool) {
	for _, p := range l.Profiles {
		if p.Department == d {
			return p, true
		}
	}
	return SkillProfile{}, false
}
