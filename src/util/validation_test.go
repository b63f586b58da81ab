package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateISODate(t *testing.T) {
	tests := map[string]bool{
		"2025-01-10":          true,
		"2024-02-29":          true,
		"2025-02-29":          false,
		"2025-1-10":           false,
		"10/01/2025":          false,
		"2025-01-10T00:00:00": false,
		"":                    false,
	}
	for in, want := range tests {
		assert.Equal(t, want, ValidateISODate(in), in)
	}
}

func TestDateRangeEndingAt(t *testing.T) {
	start, end := DateRangeEndingAt(time.Date(2025, 3, 15, 23, 0, 0, 0, time.UTC), 30)
	assert.Equal(t, "2025-02-13", start)
	assert.Equal(t, "2025-03-15", end)
}
