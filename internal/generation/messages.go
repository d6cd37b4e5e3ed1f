package generation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a transcript message.
type Role string

const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

// Message is one transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func newMessage(role Role, content string, now time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: now,
	}
}

const (
	msgStarting = "🚀 Starting lead generation process..."
	msgFarewell = "Thanks for using the lead generation assistant! Feel free to start a new conversation anytime."

	fallbackProgress    = "Generating leads..."
	fallbackJobFailure  = "Unknown error"
	fallbackSubmitError = "Failed to generate leads"
	msgPollTimeout      = "Timed out waiting for lead generation"
)

func progressMessage(s InProgress) string {
	msg := s.Message
	if msg == "" {
		msg = fallbackProgress
	}
	return fmt.Sprintf("🔄 %s %d%% complete", msg, s.Progress)
}

func successMessage(count *int) string {
	n := "your"
	if count != nil && *count > 0 {
		n = fmt.Sprintf("%d", *count)
	}
	return fmt.Sprintf("🎉 Success! I've generated %s leads. You can now view them in your leads dashboard. Would you like to generate more leads?", n)
}

func jobFailureMessage(msg string) string {
	if msg == "" {
		msg = fallbackJobFailure
	}
	return fmt.Sprintf("❌ Sorry, lead generation failed: %s. Please try again.", msg)
}

func submitErrorMessage(msg string) string {
	if msg == "" {
		msg = fallbackSubmitError
	}
	return fmt.Sprintf("❌ Sorry, I encountered an error: %s. Please try again.", msg)
}

func summaryMessage(p Parameters) string {
	var b strings.Builder
	b.WriteString("Ready to generate:\n")
	fmt.Fprintf(&b, "• %s\n", p.Audience)
	fmt.Fprintf(&b, "• Industry: %s\n", p.Niche)
	fmt.Fprintf(&b, "• Keywords: %s\n", strings.Join(p.Keywords, ", "))
	fmt.Fprintf(&b, "• Location: %s\n", p.Location)
	fmt.Fprintf(&b, "• Count: %d\n", p.RequestedCount)
	b.WriteString("\nType 'yes' to start or 'no' to restart.")
	return b.String()
}
