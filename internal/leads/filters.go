package leads

import "strings"

// All is the pass-through value of the status, industry and source filters.
const All = "all"

// Filters are the view parameters of the leads list. They never mutate leads.
type Filters struct {
	Search     string   `json:"search"`
	Status     string   `json:"status"`
	Industry   string   `json:"industry"`
	Source     string   `json:"source"`
	Tags       []string `json:"tags"`
	ScoreRange [2]int   `json:"score_range"`
}

// DefaultFilters returns filters that let every lead through.
func DefaultFilters() Filters {
	return Filters{
		Search:     "",
		Status:     All,
		Industry:   All,
		Source:     All,
		Tags:       []string{},
		ScoreRange: [2]int{0, 100},
	}
}

// FilterPatch is a partial filter update; nil fields are left unchanged.
type FilterPatch struct {
	Search     *string   `json:"search,omitempty"`
	Status     *string   `json:"status,omitempty"`
	Industry   *string   `json:"industry,omitempty"`
	Source     *string   `json:"source,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	ScoreRange *[2]int   `json:"score_range,omitempty"`
}

// Merge returns f with every non-nil field of p applied.
func (f Filters) Merge(p FilterPatch) Filters {
	out := f
	if p.Search != nil {
		out.Search = *p.Search
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Industry != nil {
		out.Industry = *p.Industry
	}
	if p.Source != nil {
		out.Source = *p.Source
	}
	if p.Tags != nil {
		out.Tags = append([]string{}, (*p.Tags)...)
	}
	if p.ScoreRange != nil {
		out.ScoreRange = *p.ScoreRange
	}
	return out
}

// Matches evaluates every filter conjunctively against lead.
func (f Filters) Matches(lead Lead) bool {
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(lead.Name), term) &&
			!strings.Contains(strings.ToLower(lead.CompanyName), term) &&
			!strings.Contains(strings.ToLower(lead.Email), term) {
			return false
		}
	}

	if !passes(f.Status, string(lead.ContactStatus)) {
		return false
	}
	if !passes(f.Industry, lead.Industry) {
		return false
	}
	if !passes(f.Source, lead.Source) {
		return false
	}

	if len(f.Tags) > 0 {
		found := false
		for _, tagID := range f.Tags {
			if lead.HasTag(tagID) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	lo, hi := f.ScoreRange[0], f.ScoreRange[1]
	return lead.LeadScore >= lo && lead.LeadScore <= hi
}

// passes treats an empty filter value like "all".
func passes(filter, value string) bool {
	return filter == "" || filter == All || filter == value
}

// ApplyFilters returns the leads matching f, preserving order.
func ApplyFilters(leads []Lead, f Filters) []Lead {
	out := make([]Lead, 0, len(leads))
	for _, lead := range leads {
		if f.Matches(lead) {
			out = append(out, lead)
		}
	}
	return out
}

// Contactable returns the leads with an email or a phone number.
func Contactable(leads []Lead) []Lead {
	out := make([]Lead, 0, len(leads))
	for _, lead := range leads {
		if lead.Contactable() {
			out = append(out, lead)
		}
	}
	return out
}
