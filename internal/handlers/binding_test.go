package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindNestedOrFlat(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name        string
		body        string
		expected    map[string]interface{}
		expectError bool
	}{
		{
			name:     "Nested client object",
			body:     `{"client": {"tradingCode": "A1", "city": "Pune"}}`,
			expected: map[string]interface{}{"tradingCode": "A1", "city": "Pune"},
		},
		{
			name:     "Flat fields",
			body:     `{"tradingCode": "A1", "isRead": true}`,
			expected: map[string]interface{}{"tradingCode": "A1", "isRead": true},
		},
		{
			name:     "Numbers keep their digits",
			body:     `{"mobileNo": 919876543210123, "holdingValue": 1500.50}`,
			expected: map[string]interface{}{"mobileNo": json.Number("919876543210123"), "holdingValue": json.Number("1500.50")},
		},
		{
			name:        "Nested value is not an object",
			body:        `{"client": "A1"}`,
			expectError: true,
		},
		{
			name:        "Invalid JSON",
			body:        `{"tradingCode": `,
			expectError: true,
		},
		{
			name:        "Empty body",
			body:        "   ",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("POST", "/clients", bytes.NewBufferString(tt.body))

			var got map[string]interface{}
			err := BindNestedOrFlat(c, "client", &got)

			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
