package fable

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		limit   int
		want    string
		wantErr error
	}{
		{"plain", "2", 0, "2", nil},
		{"keeps tabs", "a\tb", 0, "a\tb", nil},
		{"strips escapes", "\x1b[31mundo\x1b[0m", 0, "[31mundo[0m", nil},
		{"strips nul and bell", "1\x00\x07", 0, "1", nil},
		{"too large", strings.Repeat("x", 11), 10, "", ErrInputTooLarge},
		{"invalid utf8", "\xff\xfe", 0, "", ErrInvalidUTF8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeInput(tt.input, tt.limit)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
