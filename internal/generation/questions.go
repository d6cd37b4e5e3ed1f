package generation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Question keys, in the order they are asked.
const (
	KeyAudience       = "audience"
	KeyNiche          = "niche"
	KeyKeywords       = "keywords"
	KeyLocation       = "location"
	KeyRequestedCount = "requested_count"
)

// DefaultRequestedCount replaces unparsable lead counts.
const DefaultRequestedCount = 10

// Question is one step of the conversation script.
type Question struct {
	Key    string `json:"key"`
	Prompt string `json:"prompt"`
}

// DefaultQuestions returns the built-in script.
func DefaultQuestions() []Question {
	return []Question{
		{Key: KeyAudience, Prompt: "Hi! What type of companies are you looking for?"},
		{Key: KeyNiche, Prompt: "What industry? (e.g., Software, Healthcare, Marketing)"},
		{Key: KeyKeywords, Prompt: "Keywords to search for? (separate with commas)"},
		{Key: KeyLocation, Prompt: "Which location? (e.g., San Francisco, CA)"},
		{Key: KeyRequestedCount, Prompt: "How many leads? (1-100)"},
	}
}

// MergePrompts returns the default script with the prompts of overrides applied by key.
func MergePrompts(overrides []Question) ([]Question, error) {
	qs := DefaultQuestions()
	for _, o := range overrides {
		found := false
		for i := range qs {
			if qs[i].Key == o.Key {
				if o.Prompt != "" {
					qs[i].Prompt = o.Prompt
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown question key %q", o.Key)
		}
	}
	return qs, nil
}

// Parameters are the answers collected by the conversation.
type Parameters struct {
	Audience       string   `json:"audience" validate:"required"`
	Niche          string   `json:"niche" validate:"required"`
	Keywords       []string `json:"keywords" validate:"required,min=1,dive,required"`
	Location       string   `json:"location" validate:"required"`
	RequestedCount int      `json:"requested_count" validate:"min=1,max=100"`
}

// apply stores the parsed answer to the question with key.
func (p *Parameters) apply(key, answer string, defaultCount int) {
	switch key {
	case KeyAudience:
		p.Audience = answer
	case KeyNiche:
		p.Niche = answer
	case KeyKeywords:
		p.Keywords = ParseKeywords(answer)
	case KeyLocation:
		p.Location = answer
	case KeyRequestedCount:
		p.RequestedCount = ParseRequestedCount(answer, defaultCount)
	}
}

// ParseKeywords splits a comma separated answer, trimming and dropping empty entries.
func ParseKeywords(answer string) []string {
	out := []string{}
	for _, k := range strings.Split(answer, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// ParseRequestedCount reads the leading integer of answer ("12 leads" is 12).
// Unparsable or zero answers fall back to def. Range checks are left to
// Parameters.Validate.
func ParseRequestedCount(answer string, def int) int {
	s := strings.TrimSpace(answer)

	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return def
	}

	n, err := strconv.Atoi(s[:end])
	if err != nil || n == 0 {
		return def
	}
	return n
}

// ValidationError lists the parameters that failed validation.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid generation parameters: " + strings.Join(e.Fields, ", ")
}

// UserMessage is shown in the transcript.
func (e *ValidationError) UserMessage() string {
	return "Missing or invalid answers for " + strings.Join(e.Fields, ", ")
}

var validate = validator.New()

// Validate checks the parameters before submission.
func (p Parameters) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make([]string, 0, len(verrs))
	seen := make(map[string]bool)
	for _, fe := range verrs {
		name := jsonName(fe.StructField())
		if !seen[name] {
			seen[name] = true
			fields = append(fields, name)
		}
	}
	return &ValidationError{Fields: fields}
}

func jsonName(field string) string {
	switch {
	case field == "Audience":
		return KeyAudience
	case field == "Niche":
		return KeyNiche
	case strings.HasPrefix(field, "Keywords"):
		return KeyKeywords
	case field == "Location":
		return KeyLocation
	case field == "RequestedCount":
		return KeyRequestedCount
	}
	return field
}
