package draft

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCoerceString(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name  string
		input any
		want  string
		ok    bool
	}{
		{"plain string", "prof-42", "prof-42", true},
		{"padded string", "  prof-42  ", "prof-42", true},
		{"stringer", id, id.String(), true},
		{"number", 42.0, "", false},
		{"nil", nil, "", false},
		{"map", map[string]any{"id": "x"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerceString(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceTime(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  time.Time
		ok    bool
	}{
		{"time value", now, now, true},
		{"rfc3339", "2026-03-10T14:30:00Z", now, true},
		{"date time no zone", "2026-03-10T14:30:00", now, true},
		{"space separated", "2026-03-10 14:30", now, true},
		{"date only", "2026-03-10", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), true},
		{"unix seconds", float64(now.Unix()), now, true},
		{"garbage string", "next tuesday-ish", time.Time{}, false},
		{"empty string", "   ", time.Time{}, false},
		{"negative number", -5.0, time.Time{}, false},
		{"zero time", time.Time{}, time.Time{}, false},
		{"bool", true, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := coerceTime(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
			}
		})
	}
}
