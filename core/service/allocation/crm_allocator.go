// Package allocation assigns staff to departments by scoring each employee
// against the department skill profiles.
package allocation

import (
	"math"
	"sort"
	"strings"

	"crm_server/core/domain"
	"crm_server/core/service/lexicon"
)

// maxSkillMatches caps how many keyword matches count towards the skill points.
const maxSkillMatches = 3

// maxExperienceYears is the experience at which the experience points saturate.
const maxExperienceYears = 10.0

// Assessment is the outcome of scoring one employee.
type Assessment struct {
	Department domain.Department             `json:"department"`
	Score      float64                       `json:"score"`
	MaxScore   float64                       `json:"max_score"`
	Confidence int                           `json:"confidence"`
	Scores     map[domain.Department]float64 `json:"scores"`
}

// Allocator is deterministic: the same employee attributes always yield the
// same department and confidence.
type Allocator struct {
	profiles []lexicon.SkillProfile
}

// NewAllocator creates an allocator. A nil lexicon selects the defaults.
func NewAllocator(lex *lexicon.Lexicon) *Allocator {
	if lex == nil {
		lex = lexicon.Default()
	}
	profiles := append([]lexicon.SkillProfile(nil), lex.Profiles...)
	sort.SliceStable(profiles, func(i, j int) bool {
		return priorityOf(profiles[i].Department) < priorityOf(profiles[j].Department)
	})
	return &Allocator{profiles: profiles}
}

func priorityOf(d domain.Department) int {
	for i, p := range domain.DepartmentPriority {
		if p == d {
			return i
		}
	}
	return len(domain.DepartmentPriority)
}

// Allocate assigns every employee a department and returns new employee
// values plus the resulting distribution. The input slice is not modified.
// An empty roster yields an empty distribution.
func (a *Allocator) Allocate(employees []domain.Employee) ([]domain.Employee, domain.DepartmentDistribution) {
	out := make([]domain.Employee, 0, len(employees))
	for _, e := range employees {
		out = append(out, a.AllocateOne(e))
	}
	return out, Distribution(out)
}

// AllocateOne assigns a single employee. The result equals what Allocate
// produces for the same employee.
func (a *Allocator) AllocateOne(e domain.Employee) domain.Employee {
	res := a.Assess(e)
	updated := e.Clone()
	updated.AllocatedDepartment = res.Department
	confidence := res.Confidence
	updated.AllocationConfidence = &confidence
	return updated
}

// Assess scores an employee against every profile. The highest score wins;
// ties keep the department that comes first in priority order.
func (a *Allocator) Assess(e domain.Employee) Assessment {
	skills := normalizeSkills(e.Skills)
	res := Assessment{Scores: make(map[domain.Department]float64, len(a.profiles))}

	best := -1.0
	for _, p := range a.profiles {
		score := scoreProfile(p, skills, e.ExperienceYears, e.Performance())
		res.Scores[p.Department] = score
		if score > best {
			best = score
			res.Department = p.Department
			res.Score = score
			res.MaxScore = p.MaxScore()
		}
	}

	if res.MaxScore > 0 {
		res.Confidence = int(math.Round(res.Score / res.MaxScore * 100))
	}
	return res
}

func scoreProfile(p lexicon.SkillProfile, skills []string, experience, performance float64) float64 {
	score := 0.0

	if limit := min(maxSkillMatches, len(p.Keywords)); limit > 0 {
		matched := min(countMatches(p.Keywords, skills), limit)
		score += p.SkillWeight * float64(matched) / float64(limit)
	}

	score += p.ExperienceWeight * clamp(experience, 0, maxExperienceYears) / maxExperienceYears
	score += p.PerformanceWeight * clamp(performance, 0, 100) / 100
	return score
}

// countMatches counts profile keywords matched by at least one skill. A skill
// matches a keyword when either contains the other.
func countMatches(keywords, skills []string) int {
	n := 0
	for _, k := range keywords {
		for _, s := range skills {
			if strings.Contains(s, k) || strings.Contains(k, s) {
				n++
				break
			}
		}
	}
	return n
}

func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Distribution groups allocated employees by department. Employees without
// an allocated department are not counted.
func Distribution(employees []domain.Employee) domain.DepartmentDistribution {
	type acc struct {
		count       int
		confidence  float64
		performance float64
	}
	sums := make(map[domain.Department]*acc)

	for i := range employees {
		e := &employees[i]
		if !e.IsAllocated() {
			continue
		}
		s, ok := sums[e.AllocatedDepartment]
		if !ok {
			s = &acc{}
			sums[e.AllocatedDepartment] = s
		}
		s.count++
		if e.AllocationConfidence != nil {
			s.confidence += float64(*e.AllocationConfidence)
		}
		s.performance += e.Performance()
	}

	dist := make(domain.DepartmentDistribution, len(sums))
	for d, s := range sums {
		n := float64(s.count)
		dist[d] = domain.DepartmentStats{
			Count:          s.count,
			AvgConfidence:  int(math.Round(s.confidence / n)),
			AvgPerformance: math.Round(s.performance/n*10) / 10,
		}
	}
	return dist
}
