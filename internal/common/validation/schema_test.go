package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["contractId", "rentAmount"],
  "properties": {
    "contractId": {"type": "string", "minLength": 1},
    "rentAmount": {"type": ["number", "string"]},
    "paymentFrequency": {"type": "string", "enum": ["weekly", "monthly", "quarterly", "semi-annually", "yearly"]}
  }
}`

func TestSchema_ValidateInput(t *testing.T) {
	schema := MustCompile(testSchema)

	t.Run("valid input", func(t *testing.T) {
		result := schema.ValidateInput(map[string]interface{}{
			"contractId":       "c-1",
			"rentAmount":       12000.0,
			"paymentFrequency": "monthly",
		})
		assert.True(t, result.Valid)
		assert.Empty(t, result.Errors)
	})

	t.Run("missing required field", func(t *testing.T) {
		result := schema.ValidateInput(map[string]interface{}{"contractId": "c-1"})
		require.False(t, result.Valid)
		assert.True(t, result.HasErrors("rentAmount"))
		assert.Equal(t, "REQUIRED", result.Errors[0].Code)
	})

	t.Run("enum violation", func(t *testing.T) {
		result := schema.ValidateInput(map[string]interface{}{
			"contractId":       "c-1",
			"rentAmount":       "12000",
			"paymentFrequency": "fortnightly",
		})
		require.False(t, result.Valid)
		assert.True(t, result.HasErrors("paymentFrequency"))
		assert.Len(t, result.GetErrorMessages(), 1)
	})
}

func TestCompile_InvalidSchema(t *testing.T) {
	_, err := Compile(`{"type": 12}`)
	assert.Error(t, err)
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("tenant@example.com"))
	assert.False(t, ValidateEmail("not-an-email"))
}
