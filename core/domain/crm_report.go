package domain

import "time"

// ReportField is a labelled value inside a report section.
type ReportField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ReportSection is one titled block of a report. Body, Fields or both may be set.
type ReportSection struct {
	Title  string        `json:"title"`
	Body   string        `json:"body,omitempty"`
	Fields []ReportField `json:"fields,omitempty"`
}

// ReportDocument is a composed report. It carries data only, no markup.
type ReportDocument struct {
	Title       string          `json:"title"`
	GeneratedAt time.Time       `json:"generated_at"`
	Sections    []ReportSection `json:"sections"`
}

// Section returns the section with the given title.
func (d *ReportDocument) Section(title string) (ReportSection, bool) {
	for _, s := range d.Sections {
		if s.Title == title {
			return s, true
		}
	}
	return ReportSection{}, false
}

// ReportContext is caller supplied metadata for composing a report.
type ReportContext struct {
	ProjectName string    `json:"project_name"`
	ClientName  string    `json:"client_name,omitempty"`
	ClientEmail string    `json:"client_email,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}
