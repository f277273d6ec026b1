package camunda

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{errors.New("rpc error: code = Unavailable desc = connection refused"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("permission denied"), false},
		{errors.New("NOT_FOUND: process not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryableZeebeError(tt.err))
		})
	}
}
