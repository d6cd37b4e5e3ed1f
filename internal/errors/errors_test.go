package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type backendErr struct{ msg string }

func (e *backendErr) Error() string       { return "backend: " + e.msg }
func (e *backendErr) UserMessage() string { return e.msg }

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "", MessageOf(nil, "fallback"))
	assert.Equal(t, "fallback", MessageOf(stderrors.New("dial tcp: refused"), "fallback"))
	assert.Equal(t, "quota exhausted", MessageOf(&backendErr{msg: "quota exhausted"}, "fallback"))

	wrapped := fmt.Errorf("submit job: %w", &backendErr{msg: "bad niche"})
	assert.Equal(t, "bad niche", MessageOf(wrapped, "fallback"))

	assert.Equal(t, "fallback", MessageOf(&backendErr{msg: "  "}, "fallback"))
}

func TestQuotaExceeded(t *testing.T) {
	err := QuotaExceeded("free", 100, 95, 10)
	assert.Equal(t, 5, err.Remaining)
	assert.Contains(t, err.Error, "5 leads remaining")

	err = QuotaExceeded("free", 100, 120, 1)
	assert.Equal(t, 0, err.Remaining)
	assert.Equal(t, "You have reached your lead generation limit.", err.Error)
}
