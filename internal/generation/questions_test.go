package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternisai/leadgen-assistant/internal/backend"
)

func TestParseKeywords(t *testing.T) {
	assert.Equal(t, []string{"10", "20", "30"}, ParseKeywords("10, 20,,30"))
	assert.Equal(t, []string{"crm"}, ParseKeywords("  crm  "))
	assert.Equal(t, []string{}, ParseKeywords(" , ,"))
}

func TestParseRequestedCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"25", 25},
		{" 42 ", 42},
		{"12 leads", 12},
		{"abc", 10},
		{"", 10},
		{"0", 10},
		{"150", 150},
		{"-5", -5},
		{"+7", 7},
		{"-", 10},
		{"99999999999999999999999", 10},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRequestedCount(tt.in, DefaultRequestedCount))
		})
	}

	assert.Equal(t, 30, ParseRequestedCount("none", 30))
}

func TestMergePrompts(t *testing.T) {
	qs, err := MergePrompts([]Question{{Key: KeyNiche, Prompt: "Which sector?"}})
	require.NoError(t, err)
	require.Len(t, qs, 5)
	assert.Equal(t, "Which sector?", qs[1].Prompt)
	assert.Equal(t, DefaultQuestions()[0], qs[0])

	_, err = MergePrompts([]Question{{Key: "budget", Prompt: "How much?"}})
	assert.Error(t, err)
}

func TestParametersValidate(t *testing.T) {
	valid := Parameters{
		Audience:       "Dentists",
		Niche:          "Healthcare",
		Keywords:       []string{"implants"},
		Location:       "Denver, CO",
		RequestedCount: 10,
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.Audience = ""
	bad.Keywords = []string{}
	bad.RequestedCount = 0

	err := bad.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{KeyAudience, KeyKeywords, KeyRequestedCount}, verr.Fields)

	for _, n := range []int{-5, 101} {
		outOfRange := valid
		outOfRange.RequestedCount = n
		require.ErrorAs(t, outOfRange.Validate(), &verr)
		assert.Equal(t, []string{KeyRequestedCount}, verr.Fields)
	}
}

func TestParseJobState(t *testing.T) {
	n := 12
	tests := []struct {
		name    string
		payload *backend.JobStatusPayload
		want    JobState
		wantErr bool
	}{
		{name: "pending", payload: &backend.JobStatusPayload{Status: "pending"}, want: Pending{}},
		{name: "queued", payload: &backend.JobStatusPayload{Status: "queued"}, want: Pending{}},
		{name: "in progress", payload: &backend.JobStatusPayload{Status: "in_progress", Progress: 40, Message: "Scraping"}, want: InProgress{Progress: 40, Message: "Scraping"}},
		{name: "processing clamps", payload: &backend.JobStatusPayload{Status: "processing", Progress: 140}, want: InProgress{Progress: 100}},
		{name: "completed", payload: &backend.JobStatusPayload{Status: "completed", LeadsCount: &n}, want: Completed{LeadsCount: &n}},
		{name: "failed", payload: &backend.JobStatusPayload{Status: "FAILED", ErrorMessage: "quota"}, want: Failed{Message: "quota"}},
		{name: "unknown", payload: &backend.JobStatusPayload{Status: "archived"}, wantErr: true},
		{name: "nil", payload: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJobState(tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMessages(t *testing.T) {
	zero := 0
	assert.Equal(t, "🔄 Generating leads... 0% complete", progressMessage(InProgress{}))
	assert.Contains(t, successMessage(&zero), "generated your leads")
	assert.Equal(t, "❌ Sorry, lead generation failed: Unknown error. Please try again.", jobFailureMessage(""))
	assert.Equal(t, "❌ Sorry, I encountered an error: Failed to generate leads. Please try again.", submitErrorMessage(""))
}
