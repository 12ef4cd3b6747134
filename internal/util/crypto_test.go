package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstantTimeEqual(t *testing.T) {
	t.Run("equal strings", func(t *testing.T) {
		assert.True(t, ConstantTimeEqual("Bearer secret", "Bearer secret"))
	})

	t.Run("different strings", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("Bearer secret", "Bearer secreT"))
	})

	t.Run("different lengths", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("Bearer secret", "Bearer secret2"))
	})

	t.Run("empty against value", func(t *testing.T) {
		assert.False(t, ConstantTimeEqual("", "Bearer secret"))
	})
}

func TestMaskPhone(t *testing.T) {
	assert.Equal(t, "+15****67", MaskPhone("+15551234567"))
	assert.Equal(t, "****", MaskPhone("+1555"))
	assert.Equal(t, "****", MaskPhone(""))
}
