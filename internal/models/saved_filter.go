package models

import (
	"bytes"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Logical operators joining a condition to the one before it
const (
	LogicalAnd = "AND"
	LogicalOr  = "OR"
)

// FilterCondition is one typed predicate of a client query.
type FilterCondition struct {
	Field           string `json:"field"`
	Operator        string `json:"operator"`
	Value           string `json:"value"`
	LogicalOperator string `json:"logicalOperator"`
}

// UnmarshalJSON accepts numeric and boolean values in addition to strings.
func (c *FilterCondition) UnmarshalJSON(data []byte) error {
	type plain FilterCondition
	var raw struct {
		plain
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = FilterCondition(raw.plain)
	c.Value = ""

	v := bytes.TrimSpace(raw.Value)
	switch {
	case len(v) == 0 || bytes.Equal(v, []byte("null")):
	case v[0] == '"':
		return json.Unmarshal(v, &c.Value)
	default:
		c.Value = string(v)
	}
	return nil
}

// SavedFilter is a named, reusable list of filter conditions.
type SavedFilter struct {
	ID               uint                                 `gorm:"primaryKey" json:"id"`
	Name             string                               `gorm:"size:255;uniqueIndex;not null" json:"name"`
	Description      string                               `gorm:"type:text" json:"description"`
	FilterConditions datatypes.JSONSlice[FilterCondition] `json:"filterConditions"`
	CreatedBy        string                               `gorm:"size:255;default:'System'" json:"createdBy"`
	IsPublic         bool                                 `json:"isPublic"`
	UsageCount       int64                                `gorm:"default:0;index" json:"usageCount"`
	CreatedAt        time.Time                            `json:"createdAt"`
	UpdatedAt        time.Time                            `json:"updatedAt"`
}

// TableName specifies the table name for SavedFilter
func (SavedFilter) TableName() string {
	return "saved_filters"
}
