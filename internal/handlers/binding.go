package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
)

var errEmptyBody = errors.New("request body is empty")

// BindNestedOrFlat decodes the request body into obj, accepting both
// {"<key>": {...}} and a flat {...}. Numbers decode as json.Number so values
// such as mobile numbers and account codes keep their exact digits.
func BindNestedOrFlat(c *gin.Context, key string, obj interface{}) error {
	var body []byte
	if c.Request.Body != nil {
		body, _ = io.ReadAll(c.Request.Body)
	}
	// Restore body for later reads
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err == nil {
		if nested, ok := envelope[key]; ok {
			return decodeJSON(nested, obj)
		}
	}
	return decodeJSON(body, obj)
}

func decodeJSON(data []byte, obj interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(obj)
}
