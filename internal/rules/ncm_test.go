package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeNCM(t *testing.T) {
	tests := map[string]string{
		"8427.20.10":  "84272010",
		"84272010":    "84272010",
		" 8427 20 10": "84272010",
		"":            "",
		"abc":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeNCM(in), in)
	}
}

func TestFormatNCM(t *testing.T) {
	assert.Equal(t, "8427.20.10", FormatNCM("84272010"))
	assert.Equal(t, "8427.20.10", FormatNCM("8427.20.10"))
	assert.Equal(t, "8427", FormatNCM(" 8427 "))
}

func TestValidNCM(t *testing.T) {
	assert.True(t, ValidNCM("8427.20.10"))
	assert.True(t, ValidNCM("84272010"))
	assert.False(t, ValidNCM("8427.20"))
	assert.False(t, ValidNCM("842720101"))
	assert.False(t, ValidNCM(""))
}
