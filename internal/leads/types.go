package leads

import "time"

// ContactStatus represents where a lead is in the outreach pipeline.
type ContactStatus string

const (
	StatusNotContacted ContactStatus = "not_contacted"
	StatusContacted    ContactStatus = "contacted"
	StatusQualified    ContactStatus = "qualified"
	StatusUnqualified  ContactStatus = "unqualified"
	StatusConverted    ContactStatus = "converted"
)

// IsValid checks if the status is a known ContactStatus value.
func (s ContactStatus) IsValid() bool {
	switch s {
	case StatusNotContacted, StatusContacted, StatusQualified, StatusUnqualified, StatusConverted:
		return true
	default:
		return false
	}
}

// Lead sources reported by the backend.
const (
	SourceApify  = "apify"
	SourceSerper = "serper"
	SourceManual = "manual"
	SourceImport = "import"
)

// Tag is a user defined label attached to leads.
type Tag struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Lead is the client-side copy of a backend lead record.
type Lead struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	CompanyName   string        `json:"company_name,omitempty"`
	Email         string        `json:"email,omitempty"`
	Phone         string        `json:"phone,omitempty"`
	Website       string        `json:"website,omitempty"`
	City          string        `json:"city,omitempty"`
	Industry      string        `json:"industry,omitempty"`
	PainPoints    []string      `json:"pain_points,omitempty"`
	LeadScore     int           `json:"lead_score"` // 0-100
	Source        string        `json:"source"`
	ContactStatus ContactStatus `json:"contact_status"`
	Tags          []Tag         `json:"tags,omitempty"`
	Notes         string        `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Contactable reports whether the lead has an email or a phone number.
func (l Lead) Contactable() bool {
	return l.Email != "" || l.Phone != ""
}

// HasTag reports whether the lead carries the tag with the given id.
func (l Lead) HasTag(tagID string) bool {
	for _, t := range l.Tags {
		if t.ID == tagID {
			return true
		}
	}
	return false
}

// clone returns a copy that shares no slices with l.
func (l Lead) clone() Lead {
	c := l
	if l.Tags != nil {
		c.Tags = append([]Tag(nil), l.Tags...)
	}
	if l.PainPoints != nil {
		c.PainPoints = append([]string(nil), l.PainPoints...)
	}
	return c
}

// LeadPatch is a partial lead update sent to the backend.
type LeadPatch struct {
	ContactStatus *ContactStatus `json:"contact_status,omitempty"`
	Notes         *string        `json:"notes,omitempty"`
}
