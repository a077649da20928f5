// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// SearchParams holds the reserved query parameters of a document search.
// Every other query parameter is an attribute filter.
type SearchParams struct {
	Page     int64  `form:"page"`
	PageSize int64  `form:"pageSize"`
	Sort     string `form:"sort"`
	Partial  bool   `form:"partial"`
	Fields   string `form:"fields"`
}

// IsReservedSearchParam reports whether name is a search option rather than
// an attribute filter.
func IsReservedSearchParam(name string) bool {
	switch name {
	case "page", "pageSize", "sort", "partial", "fields":
		return true
	}
	return false
}

// CountersRequest represents the request body for incrementing counters.
type CountersRequest struct {
	Counters map[string]int64 `json:"counters" binding:"required,min=1"`
	Lower    *int64           `json:"lower,omitempty"`
	Upper    *int64           `json:"upper,omitempty"`
}
