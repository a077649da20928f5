package dto

import (
	"encoding/json"
	"time"
)

// CollectionResponse describes a collection exposed by the API.
type CollectionResponse struct {
	Name         string `json:"name"`
	Collection   string `json:"collection"`
	PrimaryKey   string `json:"primaryKey"`
	Versioned    bool   `json:"versioned"`
	VersionField string `json:"versionField,omitempty"`
}

// ListCollectionsResponse represents the response for listing collections.
type ListCollectionsResponse struct {
	Collections []CollectionResponse `json:"collections"`
}

// PaginationResponse describes the page returned by a search.
type PaginationResponse struct {
	Page       int64 `json:"page"`
	PageSize   int64 `json:"pageSize"`
	PageCount  int64 `json:"pageCount"`
	TotalItems int64 `json:"totalItems"`
}

// ListDocumentsResponse represents the response for a document search.
// Documents are relaxed extended JSON.
type ListDocumentsResponse struct {
	Documents  []json.RawMessage  `json:"documents"`
	Pagination PaginationResponse `json:"pagination"`
}

// CountersResponse represents the response for a counters update.
type CountersResponse struct {
	Saved    bool            `json:"saved"`
	Document json.RawMessage `json:"document"`
}

// FileResponse describes a stored file.
type FileResponse struct {
	ID         string                 `json:"id"`
	Filename   string                 `json:"filename"`
	Length     int64                  `json:"length"`
	UploadDate time.Time              `json:"uploadDate,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// ListFilesResponse represents the response for listing files.
type ListFilesResponse struct {
	Files []FileResponse `json:"files"`
}
