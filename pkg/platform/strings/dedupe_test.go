package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	tests := []struct {
		name  string
		input []string
		want  []string
	}{
		{"nil", nil, []string{}},
		{"trims", []string{" k1:9092 ", "k2:9092"}, []string{"k1:9092", "k2:9092"}},
		{"drops repeats in order", []string{"b", "a", "b", " a"}, []string{"b", "a"}},
		{"drops empties", []string{"", "  ", "x"}, []string{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeAndTrim(tt.input))
		})
	}
}
