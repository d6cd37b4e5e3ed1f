package leads

import (
	"fmt"
	"sort"
	"strings"
)

// SortField names a sortable lead column.
type SortField string

const (
	SortByName          SortField = "name"
	SortByCompany       SortField = "company_name"
	SortByEmail         SortField = "email"
	SortByCity          SortField = "city"
	SortByIndustry      SortField = "industry"
	SortBySource        SortField = "source"
	SortByContactStatus SortField = "contact_status"
	SortByLeadScore     SortField = "lead_score"
	SortByCreatedAt     SortField = "created_at"
	SortByUpdatedAt     SortField = "updated_at"
)

// SortDirection is either ascending or descending.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// Sort is the current ordering of the leads view.
type Sort struct {
	Field     SortField     `json:"field"`
	Direction SortDirection `json:"direction"`
}

// DefaultSort orders newest leads first.
func DefaultSort() Sort {
	return Sort{Field: SortByCreatedAt, Direction: Descending}
}

// ParseSortField validates a sort field name.
func ParseSortField(s string) (SortField, error) {
	f := SortField(strings.TrimSpace(s))
	switch f {
	case SortByName, SortByCompany, SortByEmail, SortByCity, SortByIndustry, SortBySource,
		SortByContactStatus, SortByLeadScore, SortByCreatedAt, SortByUpdatedAt:
		return f, nil
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

// Toggle returns the sort after the user picks field: the same field flips
// direction, a new field starts ascending.
func (s Sort) Toggle(field SortField) Sort {
	if field == s.Field {
		if s.Direction == Ascending {
			return Sort{Field: field, Direction: Descending}
		}
		return Sort{Field: field, Direction: Ascending}
	}
	return Sort{Field: field, Direction: Ascending}
}

// SortLeads returns a sorted copy of leads. The sort is stable so equal keys keep
// their canonical order in both directions.
func SortLeads(leads []Lead, s Sort) []Lead {
	out := append([]Lead(nil), leads...)
	if s.Field == "" {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := compareField(out[i], out[j], s.Field)
		if s.Direction == Descending {
			return c > 0
		}
		return c < 0
	})
	return out
}

func compareField(a, b Lead, field SortField) int {
	switch field {
	case SortByName:
		return strings.Compare(a.Name, b.Name)
	case SortByCompany:
		return strings.Compare(a.CompanyName, b.CompanyName)
	case SortByEmail:
		return strings.Compare(a.Email, b.Email)
	case SortByCity:
		return strings.Compare(a.City, b.City)
	case SortByIndustry:
		return strings.Compare(a.Industry, b.Industry)
	case SortBySource:
		return strings.Compare(a.Source, b.Source)
	case SortByContactStatus:
		return strings.Compare(string(a.ContactStatus), string(b.ContactStatus))
	case SortByLeadScore:
		return a.LeadScore - b.LeadScore
	case SortByCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case SortByUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	}
	return 0
}
